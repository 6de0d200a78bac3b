package repository

import (
	"context"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MemberRow struct {
	entity.GroupUser
	Username string
}

type WorkGroupRow struct {
	entity.WorkGroup
	Members int64
}

type WorkGroupMemberRow struct {
	entity.WorkGroupUser
	UserID   int64
	Username string
}

type GroupRepository interface {
	WithTx(tx *gorm.DB) GroupRepository
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	Create(ctx context.Context, group *entity.Group) error
	FindByID(ctx context.Context, id int64) (*entity.Group, error)
	FindAll(ctx context.Context, search string, limit, offset int) ([]entity.Group, int64, error)
	FindByIDs(ctx context.Context, ids []int64) ([]entity.Group, error)
	Update(ctx context.Context, group *entity.Group) error

	AddMember(ctx context.Context, member *entity.GroupUser) error
	FindMember(ctx context.Context, groupID, userID int64) (*entity.GroupUser, error)
	UpdateMember(ctx context.Context, member *entity.GroupUser) error
	Members(ctx context.Context, groupID int64) ([]MemberRow, error)

	CreateWorkGroup(ctx context.Context, wg *entity.WorkGroup) error
	FindWorkGroup(ctx context.Context, id int64) (*entity.WorkGroup, error)
	WorkGroups(ctx context.Context, groupID int64) ([]WorkGroupRow, error)
	DeleteWorkGroup(ctx context.Context, id int64) error

	AddWorkGroupMember(ctx context.Context, member *entity.WorkGroupUser) error
	FindWorkGroupMember(ctx context.Context, workGroupID, groupUserID int64) (*entity.WorkGroupUser, error)
	UpdateWorkGroupMember(ctx context.Context, member *entity.WorkGroupUser) error
	WorkGroupMembers(ctx context.Context, workGroupID int64) ([]WorkGroupMemberRow, error)
}

type groupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{db: db}
}

func (r *groupRepository) WithTx(tx *gorm.DB) GroupRepository {
	if tx == nil {
		return r
	}
	return &groupRepository{db: tx}
}

func (r *groupRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *groupRepository) Create(ctx context.Context, group *entity.Group) error {
	return apperror.FromDB(r.db.WithContext(ctx).Omit(clause.Associations).Create(group).Error)
}

func (r *groupRepository) FindByID(ctx context.Context, id int64) (*entity.Group, error) {
	var group entity.Group
	if err := r.db.WithContext(ctx).Where("deleted = ?", false).First(&group, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &group, nil
}

func (r *groupRepository) FindAll(ctx context.Context, search string, limit, offset int) ([]entity.Group, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Group{}).Where("deleted = ?", false)
	if search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperror.FromDB(err)
	}

	var groups []entity.Group
	if err := query.Order("created_at desc").Order("id desc").Limit(limit).Offset(offset).Find(&groups).Error; err != nil {
		return nil, 0, apperror.FromDB(err)
	}
	return groups, total, nil
}

func (r *groupRepository) FindByIDs(ctx context.Context, ids []int64) ([]entity.Group, error) {
	var groups []entity.Group
	if len(ids) == 0 {
		return groups, nil
	}
	if err := r.db.WithContext(ctx).Where("deleted = ? AND id IN ?", false, ids).Find(&groups).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return groups, nil
}

func (r *groupRepository) Update(ctx context.Context, group *entity.Group) error {
	return apperror.FromDB(r.db.WithContext(ctx).Omit(clause.Associations).Save(group).Error)
}

func (r *groupRepository) AddMember(ctx context.Context, member *entity.GroupUser) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(member).Error)
}

func (r *groupRepository) FindMember(ctx context.Context, groupID, userID int64) (*entity.GroupUser, error) {
	var member entity.GroupUser
	err := r.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &member, nil
}

func (r *groupRepository) UpdateMember(ctx context.Context, member *entity.GroupUser) error {
	return apperror.FromDB(r.db.WithContext(ctx).Save(member).Error)
}

func (r *groupRepository) Members(ctx context.Context, groupID int64) ([]MemberRow, error) {
	var rows []MemberRow
	err := r.db.WithContext(ctx).
		Model(&entity.GroupUser{}).
		Select("group_users.*, users.username").
		Joins("JOIN users ON users.id = group_users.user_id").
		Where("group_users.group_id = ?", groupID).
		Order("group_users.id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return rows, nil
}

func (r *groupRepository) CreateWorkGroup(ctx context.Context, wg *entity.WorkGroup) error {
	return apperror.FromDB(r.db.WithContext(ctx).Omit(clause.Associations).Create(wg).Error)
}

func (r *groupRepository) FindWorkGroup(ctx context.Context, id int64) (*entity.WorkGroup, error) {
	var wg entity.WorkGroup
	if err := r.db.WithContext(ctx).First(&wg, id).Error; err != nil {
		return nil, apperror.FromDB(err)
	}
	return &wg, nil
}

func (r *groupRepository) WorkGroups(ctx context.Context, groupID int64) ([]WorkGroupRow, error) {
	var rows []WorkGroupRow
	err := r.db.WithContext(ctx).
		Model(&entity.WorkGroup{}).
		Select(`work_groups.*, (SELECT COUNT(*) FROM work_group_users wgu
			WHERE wgu.work_group_id = work_groups.id AND wgu.active = ?) AS members`, true).
		Where("work_groups.group_id = ?", groupID).
		Order("work_groups.id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return rows, nil
}

func (r *groupRepository) DeleteWorkGroup(ctx context.Context, id int64) error {
	return apperror.FromDB(r.db.WithContext(ctx).Delete(&entity.WorkGroup{}, id).Error)
}

func (r *groupRepository) AddWorkGroupMember(ctx context.Context, member *entity.WorkGroupUser) error {
	return apperror.FromDB(r.db.WithContext(ctx).Create(member).Error)
}

func (r *groupRepository) FindWorkGroupMember(ctx context.Context, workGroupID, groupUserID int64) (*entity.WorkGroupUser, error) {
	var member entity.WorkGroupUser
	err := r.db.WithContext(ctx).
		Where("work_group_id = ? AND group_user_id = ?", workGroupID, groupUserID).
		First(&member).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return &member, nil
}

func (r *groupRepository) UpdateWorkGroupMember(ctx context.Context, member *entity.WorkGroupUser) error {
	return apperror.FromDB(r.db.WithContext(ctx).Save(member).Error)
}

func (r *groupRepository) WorkGroupMembers(ctx context.Context, workGroupID int64) ([]WorkGroupMemberRow, error) {
	var rows []WorkGroupMemberRow
	err := r.db.WithContext(ctx).
		Model(&entity.WorkGroupUser{}).
		Select("work_group_users.*, group_users.user_id, users.username").
		Joins("JOIN group_users ON group_users.id = work_group_users.group_user_id").
		Joins("JOIN users ON users.id = group_users.user_id").
		Where("work_group_users.work_group_id = ?", workGroupID).
		Order("work_group_users.id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	return rows, nil
}
