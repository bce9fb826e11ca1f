package photo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo keeps the upload log in process memory. It is used when no
// database is configured and in tests.
type memoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*PhotoUpload
	now   func() time.Time
}

func NewUploadRepoMemory() UploadRepository {
	return &memoryRepo{items: make(map[uuid.UUID]*PhotoUpload), now: time.Now}
}

func (r *memoryRepo) Create(_ context.Context, u *PhotoUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	cp := *u
	r.items[u.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*PhotoUpload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[id]
	if !ok {
		return nil, ErrUploadNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*PhotoUpload, int, error) {
	r.mu.RLock()
	var matched []*PhotoUpload
	for _, u := range r.items {
		if f.MedicalRecordNo != "" && (u.MedicalRecordNo == nil || *u.MedicalRecordNo != f.MedicalRecordNo) {
			continue
		}
		if f.Mode != "" && u.Mode != f.Mode {
			continue
		}
		if f.Processed != nil && u.Processed != *f.Processed {
			continue
		}
		cp := *u
		matched = append(matched, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := len(matched)
	if offset >= total {
		return []*PhotoUpload{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
