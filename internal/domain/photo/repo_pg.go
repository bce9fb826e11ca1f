package photo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehab/rehab/internal/platform/db"
	"github.com/rehab/rehab/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type uploadRepoPG struct{ pool *pgxpool.Pool }

func NewUploadRepoPG(pool *pgxpool.Pool) UploadRepository {
	return &uploadRepoPG{pool: pool}
}

func (r *uploadRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const uploadCols = `id, filename, original_name, mode,
	medical_record_no, project_name, treatment_time, caption,
	processed, warning, content_type, size, width, height, quality,
	uploaded_by, created_at`

func (r *uploadRepoPG) scanRow(row pgx.Row) (*PhotoUpload, error) {
	var u PhotoUpload
	err := row.Scan(&u.ID, &u.Filename, &u.OriginalName, &u.Mode,
		&u.MedicalRecordNo, &u.ProjectName, &u.TreatmentTime, &u.Caption,
		&u.Processed, &u.Warning, &u.ContentType, &u.Size, &u.Width, &u.Height, &u.Quality,
		&u.UploadedBy, &u.CreatedAt)
	return &u, err
}

func (r *uploadRepoPG) Create(ctx context.Context, u *PhotoUpload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO photo_uploads (id, filename, original_name, mode,
			medical_record_no, project_name, treatment_time, caption,
			processed, warning, content_type, size, width, height, quality, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at`,
		u.ID, u.Filename, u.OriginalName, u.Mode,
		u.MedicalRecordNo, u.ProjectName, u.TreatmentTime, u.Caption,
		u.Processed, u.Warning, u.ContentType, u.Size, u.Width, u.Height, u.Quality, u.UploadedBy,
	).Scan(&u.CreatedAt)
}

func (r *uploadRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PhotoUpload, error) {
	u, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+uploadCols+` FROM photo_uploads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *uploadRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*PhotoUpload, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.MedicalRecordNo != "" {
		where += fmt.Sprintf(` AND medical_record_no = $%d`, idx)
		args = append(args, f.MedicalRecordNo)
		idx++
	}
	if f.Mode != "" {
		where += fmt.Sprintf(` AND mode = $%d`, idx)
		args = append(args, f.Mode)
		idx++
	}
	if f.Processed != nil {
		where += fmt.Sprintf(` AND processed = $%d`, idx)
		args = append(args, *f.Processed)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM photo_uploads`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := pagination.Params{Limit: limit, Offset: offset}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+uploadCols+` FROM photo_uploads`+where+` ORDER BY created_at DESC, id `+page.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*PhotoUpload{}
	for rows.Next() {
		u, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}
