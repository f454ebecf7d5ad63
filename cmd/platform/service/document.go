package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

// Annotation types
const (
	AnnotationComment   = "comment"
	AnnotationHighlight = "highlight"
	AnnotationNote      = "note"
	AnnotationDrawing   = "drawing"
)

// DocumentService keeps document version history and annotations
type DocumentService struct {
	docs   DocumentStore
	events EventPublisher
	locks  *idLocks
	log    *logger.Logger
	now    func() time.Time
}

// NewDocumentService creates a document service. events may be nil.
func NewDocumentService(docs DocumentStore, events EventPublisher, log *logger.Logger) *DocumentService {
	return &DocumentService{
		docs:   docs,
		events: events,
		locks:  newIDLocks(),
		log:    log,
		now:    time.Now,
	}
}

// VersionInput is the new state of a document. Nil fields keep the
// current value.
type VersionInput struct {
	Content       *string `json:"content,omitempty"`
	Title         *string `json:"title,omitempty"`
	Filename      *string `json:"filename,omitempty"`
	MimeType      *string `json:"mimeType,omitempty"`
	ChangeType    string  `json:"changeType,omitempty"`
	ChangeSummary string  `json:"changeSummary,omitempty"`
}

// VersionDiff compares two snapshots of a document
type VersionDiff struct {
	From            int   `json:"from"`
	To              int   `json:"to"`
	ContentChanged  bool  `json:"contentChanged"`
	TitleChanged    bool  `json:"titleChanged"`
	FilenameChanged bool  `json:"filenameChanged"`
	SizeDelta       int64 `json:"sizeDelta"`
}

// AnnotationInput describes a new annotation
type AnnotationInput struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Position map[string]any `json:"position,omitempty"`
	Color    string         `json:"color,omitempty"`
}

// GetDocument returns one document
func (s *DocumentService) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.docs.GetDocument(ctx, id)
}

// CreateVersion snapshots the new state of a document and makes it current
func (s *DocumentService) CreateVersion(ctx context.Context, docID uuid.UUID, userID string, in VersionInput) (*models.DocumentVersion, error) {
	unlock := s.locks.lock(docID)
	defer unlock()

	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	next := snapshot{
		content:  derefOr(in.Content, doc.Content),
		title:    derefOr(in.Title, doc.Title),
		filename: derefOr(in.Filename, doc.Filename),
		mimeType: derefOr(in.MimeType, doc.MimeType),
	}
	if strings.TrimSpace(next.filename) == "" {
		return nil, apperr.Validation("filename is required")
	}

	changeType := in.ChangeType
	if changeType == "" {
		changeType = inferChange(doc, next)
	}
	switch changeType {
	case models.ChangeContentUpdated, models.ChangeMetadataUpdated, models.ChangeRenamed, models.ChangeMoved, models.ChangeRestored:
	default:
		return nil, apperr.Validation("unknown change type: %s", changeType)
	}

	return s.addVersion(ctx, doc, next, changeType, in.ChangeSummary, userID)
}

// ListVersions returns the version history, newest first
func (s *DocumentService) ListVersions(ctx context.Context, docID uuid.UUID) ([]*models.DocumentVersion, error) {
	if _, err := s.docs.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	return s.docs.ListVersions(ctx, docID)
}

// GetVersion returns one snapshot by number
func (s *DocumentService) GetVersion(ctx context.Context, docID uuid.UUID, number int) (*models.DocumentVersion, error) {
	return s.docs.GetVersion(ctx, docID, number)
}

// RestoreVersion copies an old snapshot into a new current version. History
// is never rewritten.
func (s *DocumentService) RestoreVersion(ctx context.Context, docID uuid.UUID, number int, userID string) (*models.DocumentVersion, error) {
	unlock := s.locks.lock(docID)
	defer unlock()

	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	old, err := s.docs.GetVersion(ctx, docID, number)
	if err != nil {
		return nil, err
	}
	if old.IsCurrentVersion {
		return nil, apperr.Conflict("version %d is already current", number)
	}

	next := snapshot{content: old.Content, title: old.Title, filename: old.Filename, mimeType: old.MimeType}
	return s.addVersion(ctx, doc, next, models.ChangeRestored, fmt.Sprintf("Restored from version %d", number), userID)
}

// DeleteVersion removes a snapshot that is not current
func (s *DocumentService) DeleteVersion(ctx context.Context, docID uuid.UUID, number int) error {
	unlock := s.locks.lock(docID)
	defer unlock()

	v, err := s.docs.GetVersion(ctx, docID, number)
	if err != nil {
		return err
	}
	if v.IsCurrentVersion {
		return apperr.Integrity("version %d is the current version of document %s", number, docID)
	}
	if err := s.docs.DeleteVersion(ctx, v.ID); err != nil {
		return err
	}
	s.log.Info("document version deleted", "document_id", docID, "version", number)
	return nil
}

// CompareVersions reports what changed between two snapshots
func (s *DocumentService) CompareVersions(ctx context.Context, docID uuid.UUID, from, to int) (*VersionDiff, error) {
	a, err := s.docs.GetVersion(ctx, docID, from)
	if err != nil {
		return nil, err
	}
	b, err := s.docs.GetVersion(ctx, docID, to)
	if err != nil {
		return nil, err
	}
	return &VersionDiff{
		From:            from,
		To:              to,
		ContentChanged:  a.Checksum != b.Checksum,
		TitleChanged:    a.Title != b.Title,
		FilenameChanged: a.Filename != b.Filename,
		SizeDelta:       b.Size - a.Size,
	}, nil
}

type snapshot struct {
	content, title, filename, mimeType string
}

func (s *DocumentService) addVersion(ctx context.Context, doc *models.Document, next snapshot, changeType, summary, userID string) (*models.DocumentVersion, error) {
	now := s.now().UTC()
	v := &models.DocumentVersion{
		ID:               uuid.New(),
		DocumentID:       doc.ID,
		VersionNumber:    doc.Version + 1,
		Filename:         next.filename,
		Title:            next.title,
		Content:          next.content,
		MimeType:         next.mimeType,
		Size:             int64(len(next.content)),
		Checksum:         Checksum(next.content),
		ChangeType:       changeType,
		ChangeSummary:    summary,
		IsCurrentVersion: true,
		CreatedBy:        userID,
		CreatedAt:        now,
	}
	if err := s.docs.AddVersion(ctx, doc, v); err != nil {
		return nil, fmt.Errorf("failed to add document version: %w", err)
	}

	s.log.Info("document version created",
		"document_id", doc.ID,
		"version", v.VersionNumber,
		"change_type", changeType,
		"user_id", userID,
	)
	s.publish(ctx, doc.ID, "document.version_created", v)
	return v, nil
}

// Checksum is the hex SHA-256 of content
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func inferChange(doc *models.Document, next snapshot) string {
	switch {
	case next.content != doc.Content:
		return models.ChangeContentUpdated
	case next.filename != doc.Filename || next.title != doc.Title:
		return models.ChangeRenamed
	default:
		return models.ChangeMetadataUpdated
	}
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

// AddAnnotation appends an annotation to metadata.annotations
func (s *DocumentService) AddAnnotation(ctx context.Context, docID uuid.UUID, userID string, in AnnotationInput) (*models.Annotation, error) {
	if in.Type == "" {
		in.Type = AnnotationComment
	}
	switch in.Type {
	case AnnotationComment, AnnotationHighlight, AnnotationNote, AnnotationDrawing:
	default:
		return nil, apperr.Validation("unknown annotation type: %s", in.Type)
	}
	if in.Type != AnnotationHighlight && strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Validation("content is required")
	}

	unlock := s.locks.lock(docID)
	defer unlock()

	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	a := &models.Annotation{
		ID:        uuid.New(),
		Type:      in.Type,
		Content:   in.Content,
		UserID:    userID,
		Position:  in.Position,
		Color:     in.Color,
		CreatedAt: s.now().UTC(),
	}

	var ops []patchOp
	if _, ok := doc.Metadata["annotations"].([]any); !ok {
		ops = append(ops, patchOp{Op: "add", Path: "/annotations", Value: []any{}})
	}
	ops = append(ops, patchOp{Op: "add", Path: "/annotations/-", Value: a})

	if err := s.patchMetadata(ctx, doc, ops); err != nil {
		return nil, err
	}

	s.log.Info("annotation added", "document_id", docID, "annotation_id", a.ID, "type", a.Type)
	s.publish(ctx, docID, "annotation.added", a)
	return a, nil
}

// ListAnnotations returns the annotations of a document in insertion order
func (s *DocumentService) ListAnnotations(ctx context.Context, docID uuid.UUID) ([]models.Annotation, error) {
	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	return annotationsOf(doc)
}

// DeleteAnnotation removes an annotation. Only its author may delete it.
func (s *DocumentService) DeleteAnnotation(ctx context.Context, docID, annotationID uuid.UUID, userID string) error {
	unlock := s.locks.lock(docID)
	defer unlock()

	doc, err := s.docs.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	list, err := annotationsOf(doc)
	if err != nil {
		return err
	}

	idx := -1
	for i, a := range list {
		if a.ID == annotationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.NotFound("annotation", annotationID.String())
	}
	if list[idx].UserID != userID {
		return apperr.Forbidden("annotation %s belongs to another user", annotationID)
	}

	path := fmt.Sprintf("/annotations/%d", idx)
	ops := []patchOp{
		{Op: "test", Path: path + "/id", Value: annotationID.String()},
		{Op: "remove", Path: path},
	}
	if err := s.patchMetadata(ctx, doc, ops); err != nil {
		return err
	}

	s.log.Info("annotation deleted", "document_id", docID, "annotation_id", annotationID)
	s.publish(ctx, docID, "annotation.deleted", map[string]any{"id": annotationID})
	return nil
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// patchMetadata applies ops to the document metadata and stores the result
func (s *DocumentService) patchMetadata(ctx context.Context, doc *models.Document, ops []patchOp) error {
	current := doc.Metadata
	if current == nil {
		current = map[string]any{}
	}
	original, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to marshal patch: %w", err)
	}

	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return fmt.Errorf("failed to decode patch: %w", err)
	}
	modified, err := patch.Apply(original)
	if err != nil {
		return apperr.Conflict("metadata changed concurrently: %v", err)
	}

	var metadata map[string]any
	if err := json.Unmarshal(modified, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if err := s.docs.UpdateMetadata(ctx, doc.ID, metadata); err != nil {
		return err
	}
	doc.Metadata = metadata
	return nil
}

func annotationsOf(doc *models.Document) ([]models.Annotation, error) {
	raw, ok := doc.Metadata["annotations"]
	if !ok || raw == nil {
		return []models.Annotation{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal annotations: %w", err)
	}
	var list []models.Annotation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, apperr.Integrity("document %s has malformed annotations", doc.ID)
	}
	return list, nil
}

func (s *DocumentService) publish(ctx context.Context, docID uuid.UUID, event string, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, "document:"+docID.String(), event, data); err != nil {
		s.log.Warn("failed to publish document event", "event", event, "document_id", docID, "error", err)
	}
}
