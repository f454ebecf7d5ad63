package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/codec"
	"github.com/exprsn/platform/common/logger"
	"github.com/exprsn/platform/common/models"
)

// ExportFile locates a written export
type ExportFile struct {
	Path      string    `json:"exportPath"`
	URL       string    `json:"exportUrl"`
	Format    string    `json:"exportFormat"`
	ExpiresAt time.Time `json:"expiresAt"`
	Size      int64     `json:"size"`
}

// Exporter writes report results under the export directory
type Exporter struct {
	fs      billy.Filesystem
	baseURL string
	ttl     time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// NewExporter creates an exporter writing into fs
func NewExporter(fs billy.Filesystem, baseURL string, ttl time.Duration, log *logger.Logger) *Exporter {
	return &Exporter{
		fs:      fs,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}
}

// NewOSExporter creates an exporter writing into dir
func NewOSExporter(dir, baseURL string, ttl time.Duration, log *logger.Logger) *Exporter {
	return NewExporter(osfs.New(dir), baseURL, ttl, log)
}

// Export encodes result as format and writes it to a file named after the
// report and execution
func (e *Exporter) Export(executionID uuid.UUID, reportName, format string, result *ReportResult) (*ExportFile, error) {
	if format == "" {
		format = models.ExportCSV
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case models.ExportCSV:
		data, err = encodeCSV(result)
	case models.ExportJSON:
		data, err = json.MarshalIndent(result, "", "  ")
	default:
		return nil, apperr.Validation("unsupported export format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s export: %w", format, err)
	}

	name := fmt.Sprintf("%s-%s.%s", codec.Slug(reportName), executionID, format)
	if err := util.WriteFile(e.fs, name, data, 0o644); err != nil {
		return nil, apperr.IO(err, "write export %s", name)
	}

	e.log.Debug("report exported", "file", name, "bytes", len(data))
	return &ExportFile{
		Path:      e.fs.Join(e.fs.Root(), name),
		URL:       e.baseURL + "/" + name,
		Format:    format,
		ExpiresAt: e.now().UTC().Add(e.ttl),
		Size:      int64(len(data)),
	}, nil
}

// Remove deletes an export by the path Export returned. A missing file is
// not an error.
func (e *Exporter) Remove(path string) error {
	name := strings.TrimPrefix(strings.TrimPrefix(path, e.fs.Root()), string(os.PathSeparator))
	if err := e.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.IO(err, "remove export %s", name)
	}
	return nil
}

func encodeCSV(result *ReportResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(result.Columns); err != nil {
		return nil, err
	}

	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i, col := range result.Columns {
			record[i] = csvValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func csvValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []byte:
		return string(t)
	case map[string]any, []any:
		raw, _ := json.Marshal(t)
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}

// EmailSender dispatches email
type EmailSender interface {
	SendEmail(ctx context.Context, e clients.Email) error
}

// WebhookPoster posts JSON payloads. *clients.WebhookClient satisfies it.
type WebhookPoster interface {
	Post(ctx context.Context, url string, payload any) error
}

// WebhookPayload is posted to a schedule's webhook after each run
type WebhookPayload struct {
	ScheduleID   uuid.UUID `json:"scheduleId"`
	ReportID     uuid.UUID `json:"reportId"`
	ReportName   string    `json:"reportName"`
	ExportURL    string    `json:"exportUrl"`
	ExportFormat string    `json:"exportFormat"`
	ExecutedAt   time.Time `json:"executedAt"`
}

// Delivery hands a finished export to its sink
type Delivery struct {
	email   EmailSender
	webhook WebhookPoster
}

// NewDelivery creates a delivery dispatcher
func NewDelivery(email EmailSender, webhook WebhookPoster) *Delivery {
	return &Delivery{email: email, webhook: webhook}
}

// Deliver sends file through the schedule's delivery method. Storage and
// download need no action since the file is already in place.
func (d *Delivery) Deliver(ctx context.Context, s *models.ReportSchedule, reportName string, file *ExportFile, executedAt time.Time) error {
	switch s.DeliveryMethod {
	case models.DeliveryStorage, models.DeliveryDownload, "":
		return nil

	case models.DeliveryEmail:
		if len(s.DeliveryConfig.Recipients) == 0 {
			return apperr.Delivery(nil, "schedule %s has no email recipients", s.ID)
		}
		subject := s.DeliveryConfig.Subject
		if subject == "" {
			subject = "Scheduled report: " + reportName
		}
		err := d.email.SendEmail(ctx, clients.Email{
			To:       s.DeliveryConfig.Recipients,
			Subject:  subject,
			Template: "scheduled_report",
			Data: map[string]any{
				"reportName": reportName,
				"scheduleId": s.ID.String(),
				"exportUrl":  file.URL,
				"expiresAt":  file.ExpiresAt,
				"executedAt": executedAt,
			},
			Attachments: []clients.Attachment{{Filename: fileName(file.Path), URL: file.URL}},
		})
		if err != nil {
			return apperr.Delivery(err, "email report %s", reportName)
		}
		return nil

	case models.DeliveryWebhook:
		if s.DeliveryConfig.WebhookURL == "" {
			return apperr.Delivery(nil, "schedule %s has no webhook url", s.ID)
		}
		return d.webhook.Post(ctx, s.DeliveryConfig.WebhookURL, WebhookPayload{
			ScheduleID:   s.ID,
			ReportID:     s.ReportID,
			ReportName:   reportName,
			ExportURL:    file.URL,
			ExportFormat: file.Format,
			ExecutedAt:   executedAt,
		})

	default:
		return apperr.Validation("unknown delivery method: %s", s.DeliveryMethod)
	}
}

func fileName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
