package service

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/Gofven/flowback-backend-sub001/internal/entity"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

const groupsIndex = "groups"

// GroupDoc is the searchable projection of a group.
type GroupDoc struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Public      bool     `json:"public"`
	Deleted     bool     `json:"deleted"`
	CreatedAt   int64    `json:"created_at"`
}

type MeiliSearchService interface {
	IndexGroup(group *entity.Group) error
	DeleteGroup(id int64) error
	SearchGroups(query string, limit, offset int) ([]GroupDoc, int64, error)
}

type meiliSearchService struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
	log       zerolog.Logger
}

func NewMeiliSearchService(client meilisearch.ServiceManager, log zerolog.Logger) MeiliSearchService {
	s := &meiliSearchService{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
		log:       log,
	}
	s.initIndexes()
	return s
}

func (s *meiliSearchService) initIndexes() {
	filterable := []any{"public", "deleted", "tags"}
	if _, err := s.client.Index(groupsIndex).UpdateFilterableAttributes(&filterable); err != nil {
		s.log.Warn().Err(err).Msg("failed to update groups filterable attributes")
	}

	sortable := []string{"created_at"}
	if _, err := s.client.Index(groupsIndex).UpdateSortableAttributes(&sortable); err != nil {
		s.log.Warn().Err(err).Msg("failed to update groups sortable attributes")
	}
}

// CleanText strips markup and collapses whitespace.
func CleanText(p *bluemonday.Policy, content string) string {
	content = strings.ReplaceAll(content, "</p>", " ")
	content = strings.ReplaceAll(content, "<br>", " ")
	content = strings.ReplaceAll(content, "</div>", " ")
	return strings.Join(strings.Fields(html.UnescapeString(p.Sanitize(content))), " ")
}

func NewGroupDoc(p *bluemonday.Policy, group *entity.Group) GroupDoc {
	doc := GroupDoc{
		ID:        group.ID,
		Name:      group.Name,
		Tags:      append([]string{}, group.Tag...),
		Public:    group.Public,
		Deleted:   group.Deleted,
		CreatedAt: group.CreatedAt.Unix(),
	}
	if group.Description != nil {
		doc.Description = CleanText(p, *group.Description)
	}
	return doc
}

func (s *meiliSearchService) IndexGroup(group *entity.Group) error {
	doc := NewGroupDoc(s.sanitizer, group)
	task, err := s.client.Index(groupsIndex).AddDocuments([]GroupDoc{doc}, strPtr("id"))
	if err != nil {
		return err
	}
	s.log.Debug().Int64("group_id", group.ID).Int64("task_uid", task.TaskUID).Msg("indexed group")
	return nil
}

func (s *meiliSearchService) DeleteGroup(id int64) error {
	_, err := s.client.Index(groupsIndex).DeleteDocument(fmt.Sprint(id))
	return err
}

func (s *meiliSearchService) SearchGroups(query string, limit, offset int) ([]GroupDoc, int64, error) {
	raw, err := s.client.Index(groupsIndex).SearchRaw(query, &meilisearch.SearchRequest{
		Limit:  int64(limit),
		Offset: int64(offset),
		Filter: "public = true AND deleted = false",
	})
	if err != nil {
		return nil, 0, err
	}

	var result struct {
		Hits               []GroupDoc `json:"hits"`
		EstimatedTotalHits int64      `json:"estimatedTotalHits"`
	}
	if err := json.Unmarshal(*raw, &result); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}
	return result.Hits, result.EstimatedTotalHits, nil
}

func strPtr(s string) *string {
	return &s
}
