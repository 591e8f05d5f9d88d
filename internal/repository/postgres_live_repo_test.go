package repository

import (
	"context"
	"testing"
)

// PostgresLiveRepoがインターフェースを満たすことを検証
func TestPostgresLiveRepo_ImplementsInterface(t *testing.T) {
	var _ LiveRepository = (*PostgresLiveRepo)(nil)
}

// UUID形式でないライブIDがnot-found扱いになることを検証
func TestPostgresLiveRepo_FindByID_NonUUID_ReturnsNotFound(t *testing.T) {
	repo := NewPostgresLiveRepo(nil)

	live, err := repo.FindByID(context.Background(), "live-9")
	if err != nil {
		t.Fatalf("FindByID returned error: %v, want nil", err)
	}
	if live != nil {
		t.Errorf("FindByID = %+v, want nil", live)
	}
}
