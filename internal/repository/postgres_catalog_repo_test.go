package repository

import (
	"context"
	"testing"
)

// PostgresStoreItemRepo / PostgresConcertRepoがインターフェースを満たすことを検証
func TestPostgresCatalogRepos_ImplementInterfaces(t *testing.T) {
	var _ StoreItemRepository = (*PostgresStoreItemRepo)(nil)
	var _ ConcertRepository = (*PostgresConcertRepo)(nil)
}

// UUID形式でないコンサートIDがnot-found扱いになることを検証。
// product id "ticket-summer-tour" のサフィックスのような外部入力が
// そのまま渡ってくるため、型エラーではなくnilを返す必要がある。
func TestPostgresConcertRepo_FindByID_NonUUID_ReturnsNotFound(t *testing.T) {
	repo := NewPostgresConcertRepo(nil)

	for _, id := range []string{"summer-tour", "c1", "", "not-a-uuid-at-all"} {
		concert, err := repo.FindByID(context.Background(), id)
		if err != nil {
			t.Errorf("FindByID(%q) returned error: %v, want nil", id, err)
		}
		if concert != nil {
			t.Errorf("FindByID(%q) = %+v, want nil", id, concert)
		}
	}
}

// UUID形式でない商品IDがnot-found扱いになることを検証
func TestPostgresStoreItemRepo_FindByID_NonUUID_ReturnsNotFound(t *testing.T) {
	repo := NewPostgresStoreItemRepo(nil)

	item, err := repo.FindByID(context.Background(), "merch-tote")
	if err != nil {
		t.Fatalf("FindByID returned error: %v, want nil", err)
	}
	if item != nil {
		t.Errorf("FindByID = %+v, want nil", item)
	}
}

// isUUIDが正規のUUIDを受け入れることを検証
func TestIsUUID(t *testing.T) {
	if !isUUID("2b1c8f0e-44d5-4b8a-9f6e-3a7d1c5e9b20") {
		t.Error("isUUID should accept a canonical UUID")
	}
	if isUUID("summer-tour") {
		t.Error("isUUID should reject a non-UUID string")
	}
}
