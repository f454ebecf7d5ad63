// Package codec converts low-code artifacts between their database record
// and the canonical JSON file form stored in a Git workspace.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/exprsn/platform/common/models"
	"github.com/google/uuid"
)

// Redacted replaces secrets in exported datasource configs
const Redacted = "***REDACTED***"

// SecretKeys are the connectionConfig keys redacted on export
var SecretKeys = []string{"password", "apiKey", "secret", "token", "credentials"}

// FilePayload is the decoded canonical file of one artifact
type FilePayload map[string]any

// Patch is a set of database fields derived from a file
type Patch map[string]any

// Keys handled outside the kind body
var metaKeys = map[string]bool{
	"id":            true,
	"name":          true,
	"type":          true,
	"version":       true,
	"createdAt":     true,
	"updatedAt":     true,
	"createdBy":     true,
	"updatedBy":     true,
	"applicationId": true,
	"displayName":   true,
	"metadata":      true,
}

// ToFile produces the canonical payload of rec. Datasource secrets are
// redacted.
func ToFile(kind models.ArtifactKind, rec *models.Artifact) (FilePayload, error) {
	if _, err := NewSpec(kind); err != nil {
		return nil, err
	}

	p := toPayload(kind, rec)
	if kind == models.KindDataSource {
		if cfg, ok := p["connectionConfig"].(map[string]any); ok {
			p["connectionConfig"] = Redact(cfg)
		}
	}
	return p, nil
}

func toPayload(kind models.ArtifactKind, rec *models.Artifact) FilePayload {
	p := FilePayload{
		"id":        rec.ID.String(),
		"name":      rec.Name,
		"type":      string(kind),
		"version":   rec.Version,
		"createdAt": formatTime(rec.CreatedAt),
		"updatedAt": formatTime(rec.UpdatedAt),
		"createdBy": optString(rec.CreatedBy),
		"updatedBy": optString(rec.UpdatedBy),
	}
	if rec.ApplicationID != nil {
		p["applicationId"] = rec.ApplicationID.String()
	}
	if rec.DisplayName != "" {
		p["displayName"] = rec.DisplayName
	}
	if len(rec.Metadata) > 0 {
		p["metadata"] = deepCopy(rec.Metadata)
	}
	for k, v := range rec.Spec {
		if metaKeys[k] {
			continue
		}
		p[k] = deepCopy(v)
	}
	return p
}

// Redact returns a copy of cfg with every top-level secret key replaced
func Redact(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = deepCopy(v)
	}
	for _, k := range SecretKeys {
		if _, ok := out[k]; ok {
			out[k] = Redacted
		}
	}
	return out
}

// FromFile converts a payload into database fields. id, createdAt and type
// are dropped. applicationID is injected when the payload has none.
func FromFile(kind models.ArtifactKind, payload FilePayload, applicationID *uuid.UUID) (Patch, error) {
	if _, err := NewSpec(kind); err != nil {
		return nil, err
	}

	patch := make(Patch, len(payload))
	for k, v := range payload {
		switch k {
		case "id", "createdAt", "type":
			continue
		}
		patch[k] = deepCopy(v)
	}

	if _, ok := patch["applicationId"]; !ok && applicationID != nil && kind != models.KindApplication {
		patch["applicationId"] = applicationID.String()
	}

	if err := validatePatch(kind, patch); err != nil {
		return nil, err
	}
	return patch, nil
}

func validatePatch(kind models.ArtifactKind, patch Patch) error {
	name, ok := patch["name"].(string)
	if !ok || name == "" {
		return fileFormat("%s payload: name is required", kind)
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if v, ok := patch["version"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return fileFormat("%s payload: version must be a string", kind)
		}
		if err := ValidateVersion(s); err != nil {
			return err
		}
	}
	for _, k := range []string{"updatedAt", "createdBy", "updatedBy", "applicationId", "displayName"} {
		if v, ok := patch[k]; ok && v != nil {
			if _, ok := v.(string); !ok {
				return fileFormat("%s payload: %s must be a string", kind, k)
			}
		}
	}
	if v, ok := patch["metadata"]; ok && v != nil {
		if _, ok := v.(map[string]any); !ok {
			return fileFormat("%s payload: metadata must be an object", kind)
		}
	}
	_, err := DecodeSpec(kind, bodyOf(patch))
	return err
}

// NewRecord builds an unsaved record of kind from patch. Unset fields get
// their defaults and redacted secrets are dropped.
func NewRecord(kind models.ArtifactKind, patch Patch) (*models.Artifact, error) {
	clean := make(Patch, len(patch))
	for k, v := range patch {
		clean[k] = deepCopy(v)
	}
	if kind == models.KindDataSource {
		if cfg, ok := clean["connectionConfig"].(map[string]any); ok {
			for _, k := range SecretKeys {
				if cfg[k] == Redacted {
					delete(cfg, k)
				}
			}
		}
	}
	return recordFromPatch(kind, clean)
}

// ApplyPatch merges patch onto existing using JSON merge patch semantics
// and returns the updated record. Identity and creation fields never
// change. Datasource secrets arriving as Redacted keep the stored value.
func ApplyPatch(existing *models.Artifact, patch Patch) (*models.Artifact, error) {
	incoming := make(Patch, len(patch))
	for k, v := range patch {
		if k == "id" || k == "createdAt" || k == "type" {
			continue
		}
		incoming[k] = deepCopy(v)
	}
	if existing.Kind == models.KindDataSource {
		keepSecrets(existing.Spec, incoming)
	}

	original, err := json.Marshal(toPayload(existing.Kind, existing))
	if err != nil {
		return nil, fmt.Errorf("encode existing artifact: %w", err)
	}
	patchDoc, err := json.Marshal(incoming)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	merged, err := jsonpatch.MergePatch(original, patchDoc)
	if err != nil {
		return nil, fileFormat("merge patch: %v", err)
	}

	var doc Patch
	if err := json.Unmarshal(merged, &doc); err != nil {
		return nil, fileFormat("decode merged artifact: %v", err)
	}

	updated, err := recordFromPatch(existing.Kind, doc)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	updated.DeletedAt = existing.DeletedAt
	return updated, nil
}

func keepSecrets(stored map[string]any, incoming Patch) {
	cfg, ok := incoming["connectionConfig"].(map[string]any)
	if !ok {
		return
	}
	storedCfg, _ := stored["connectionConfig"].(map[string]any)
	for _, k := range SecretKeys {
		if cfg[k] != Redacted {
			continue
		}
		if v, ok := storedCfg[k]; ok {
			cfg[k] = deepCopy(v)
		} else {
			delete(cfg, k)
		}
	}
}

func recordFromPatch(kind models.ArtifactKind, patch Patch) (*models.Artifact, error) {
	if err := validatePatch(kind, patch); err != nil {
		return nil, err
	}

	rec := &models.Artifact{
		Kind:        kind,
		Name:        patch["name"].(string),
		Version:     DefaultVersion,
		DisplayName: stringField(patch, "displayName"),
		CreatedBy:   models.StringPtr(stringField(patch, "createdBy")),
		UpdatedBy:   models.StringPtr(stringField(patch, "updatedBy")),
		Spec:        bodyOf(patch),
	}
	if v := stringField(patch, "version"); v != "" {
		rec.Version = v
	}
	if m, ok := patch["metadata"].(map[string]any); ok {
		rec.Metadata = m
	}
	if s := stringField(patch, "applicationId"); s != "" && kind != models.KindApplication {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fileFormat("applicationId %q: %v", s, err)
		}
		rec.ApplicationID = &id
	}
	if s := stringField(patch, "updatedAt"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fileFormat("updatedAt %q: %v", s, err)
		}
		rec.UpdatedAt = t
	}

	applyBodyDefaults(kind, rec.Spec)
	return rec, nil
}

// Validate checks a record's name, version and typed body
func Validate(rec *models.Artifact) error {
	if err := ValidateName(rec.Name); err != nil {
		return err
	}
	if err := ValidateVersion(rec.Version); err != nil {
		return err
	}
	_, err := DecodeSpec(rec.Kind, rec.Spec)
	return err
}

// UpdatedAtOf reads payload.updatedAt. ok is false when absent or invalid.
func UpdatedAtOf(payload FilePayload) (time.Time, bool) {
	s, _ := payload["updatedAt"].(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}

// IDOf reads payload.id
func IDOf(payload FilePayload) (uuid.UUID, bool) {
	s, _ := payload["id"].(string)
	id, err := uuid.Parse(s)
	return id, err == nil
}

// Decode parses raw file bytes
func Decode(raw []byte) (FilePayload, error) {
	var p FilePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fileFormat("invalid JSON: %v", err)
	}
	if p == nil {
		return nil, fileFormat("payload must be a JSON object")
	}
	return p, nil
}

func applyBodyDefaults(kind models.ArtifactKind, body map[string]any) {
	setDefault := func(m map[string]any, k string, v any) {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	switch kind {
	case models.KindEntity:
		setDefault(body, "sourceType", "custom")
	case models.KindForm:
		setDefault(body, "status", "draft")
	case models.KindGrid:
		setDefault(body, "gridType", "readonly")
		pg, ok := body["pagination"].(map[string]any)
		if !ok {
			pg = map[string]any{"enabled": true}
			body["pagination"] = pg
		}
		setDefault(pg, "pageSize", float64(DefaultGridPageSize))
	case models.KindQuery:
		setDefault(body, "timeout", float64(DefaultQueryTimeout))
	}
}

func bodyOf(patch Patch) map[string]any {
	body := make(map[string]any)
	for k, v := range patch {
		if !metaKeys[k] {
			body[k] = v
		}
	}
	return body
}

func stringField(p Patch, key string) string {
	s, _ := p[key].(string)
	return s
}

func optString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// deepCopy clones JSON-shaped values so payloads never alias records
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCopy(vv)
		}
		return out
	case FilePayload:
		return deepCopy(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopy(vv)
		}
		return out
	default:
		return v
	}
}
