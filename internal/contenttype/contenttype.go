// Package contenttype resolves polymorphic (content_type, object_id)
// references to the table that holds the subject.
package contenttype

import (
	"context"
	"fmt"
	"slices"

	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
)

const (
	Group     = "group.group"
	WorkGroup = "group.workgroup"
	Schedule  = "schedule.schedule"
	Comment   = "comment.comment"
)

// Ref points at one row of a registered content type.
type Ref struct {
	ContentType string `json:"content_type"`
	ObjectID    int64  `json:"object_id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.ContentType, r.ObjectID)
}

// Registry maps content type tags to tables.
type Registry struct {
	tables map[string]string
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]string)}
}

// Default knows every content type the application stores.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Group, "groups")
	r.Register(WorkGroup, "work_groups")
	r.Register(Schedule, "schedules")
	r.Register(Comment, "comments")
	return r
}

func (r *Registry) Register(tag, table string) {
	r.tables[tag] = table
}

func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.tables))
	for tag := range r.tables {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

func (r *Registry) Table(tag string) (string, error) {
	table, ok := r.tables[tag]
	if !ok {
		return "", fmt.Errorf("%w: unknown content type %q", apperror.ErrInvalidInput, tag)
	}
	return table, nil
}

// Resolve fails with apperror.ErrNotFound when the referenced row is gone.
func (r *Registry) Resolve(ctx context.Context, db *gorm.DB, ref Ref) error {
	table, err := r.Table(ref.ContentType)
	if err != nil {
		return err
	}
	var n int64
	if err := db.WithContext(ctx).Table(table).Where("id = ?", ref.ObjectID).Count(&n).Error; err != nil {
		return apperror.FromDB(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperror.ErrNotFound, ref)
	}
	return nil
}
