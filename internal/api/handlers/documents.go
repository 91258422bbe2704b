package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"advisy/internal/core"
	"advisy/internal/types"
)

// DocumentStore is the data access contract for client documents.
type DocumentStore interface {
	Create(ctx context.Context, d *types.Document) error
	GetByID(ctx context.Context, tenantID, id string) (*types.Document, error)
	GetExtractedText(ctx context.Context, tenantID, id string) (string, error)
	ListByClient(ctx context.Context, tenantID, clientID string) ([]*types.Document, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// NotificationWriter inserts in-app notifications. The repository implements
// this by writing the row and publishing it on the NOTIFY channel, which is
// what fans the event out to open feeds.
type NotificationWriter interface {
	Create(ctx context.Context, n *types.Notification) error
}

// DeliveryJobPublisher enqueues an outbound delivery job for the notify
// worker.
type DeliveryJobPublisher interface {
	Publish(ctx context.Context, job types.DeliveryJob, delay time.Duration) error
}

// StorageEnforcer checks the tenant's plan storage limit before accepting an
// upload.
type StorageEnforcer interface {
	CheckLimit(ctx context.Context, tenantID string, resource types.ResourceType, count int) error
}

// CreateDocumentRequest is the request body for POST /v1/clients/{id}/documents.
// The binary itself is uploaded out of band; this registers the metadata.
type CreateDocumentRequest struct {
	Name        string                 `json:"name" validate:"required,max=255"`
	Category    types.DocumentCategory `json:"category" validate:"required,oneof=identity contract mandate statement other"`
	ContentType string                 `json:"content_type" validate:"required,max=100"`
	SizeBytes   int64                  `json:"size_bytes" validate:"required,min=1"`
	StoragePath string                 `json:"storage_path" validate:"required,max=500"`
}

// DocumentHandler manages client document records. Creation feeds the
// notification fan-out: the insert lands in the tenant feed immediately and
// a delivery job goes to the queue.
type DocumentHandler struct {
	documents     DocumentStore
	notifications NotificationWriter
	publisher     DeliveryJobPublisher
	enforcer      StorageEnforcer
	validator     *core.Validator
	logger        *slog.Logger
}

func NewDocumentHandler(
	documents DocumentStore,
	notifications NotificationWriter,
	publisher DeliveryJobPublisher,
	enforcer StorageEnforcer,
	v *core.Validator,
	l *slog.Logger,
) *DocumentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DocumentHandler{
		documents:     documents,
		notifications: notifications,
		publisher:     publisher,
		enforcer:      enforcer,
		validator:     v,
		logger:        l,
	}
}

// RegisterRoutes mounts document routes under the client subtree plus the
// direct document routes.
func (h *DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/clients/{clientID}/documents", func(r chi.Router) {
		r.Get("/", h.ListByClient)
		r.Post("/", h.Create)
	})
	r.Route("/documents/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/text", h.GetExtractedText)
		r.Delete("/", h.Delete)
	})
}

// ListByClient handles GET /v1/clients/{clientID}/documents.
func (h *DocumentHandler) ListByClient(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	clientID, ok := urlID(w, r, "clientID", "client ID")
	if !ok {
		return
	}

	docs, err := h.documents.ListByClient(r.Context(), actor.TenantID, clientID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: docs})
}

// Create handles POST /v1/clients/{clientID}/documents.
//
// The storage limit check runs before the insert. On success a new-document
// notification is inserted through the fan-out write path and a delivery job
// is published; failures on either side are logged but never roll back the
// document.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	clientID, ok := urlID(w, r, "clientID", "client ID")
	if !ok {
		return
	}

	var req CreateDocumentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if h.enforcer != nil {
		if err := h.enforcer.CheckLimit(r.Context(), actor.TenantID, types.ResourceStorageGB, 0); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	doc := &types.Document{
		ID:          "doc_" + uuid.NewString(),
		TenantID:    actor.TenantID,
		ClientID:    clientID,
		Name:        req.Name,
		Category:    req.Category,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		StoragePath: req.StoragePath,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.documents.Create(r.Context(), doc); err != nil {
		core.Error(w, r, err)
		return
	}

	h.fanOutNewDocument(r.Context(), actor, doc)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: doc})
}

// fanOutNewDocument inserts the in-app notification and queues the outbound
// delivery for a freshly created document.
func (h *DocumentHandler) fanOutNewDocument(ctx context.Context, actor types.Actor, doc *types.Document) {
	notification := &types.Notification{
		ID:       "ntf_" + uuid.NewString(),
		TenantID: actor.TenantID,
		Kind:     types.KindNewDocument,
		Title:    "Nouveau document",
		Message:  fmt.Sprintf("Le document « %s » a été ajouté.", doc.Name),
		Payload: types.PayloadMap{
			"document_id": doc.ID,
			"client_id":   doc.ClientID,
			"category":    string(doc.Category),
		},
		CreatedAt: time.Now().UTC(),
	}

	if h.notifications != nil {
		if err := h.notifications.Create(ctx, notification); err != nil {
			h.logger.ErrorContext(ctx, "failed to insert new-document notification",
				"document_id", doc.ID,
				"tenant_id", actor.TenantID,
				"error", err,
			)
			return
		}
	}

	if h.publisher != nil {
		job := types.DeliveryJob{
			NotificationID: notification.ID,
			TenantID:       actor.TenantID,
			Kind:           types.KindNewDocument,
			Channel:        types.ChannelEmail,
			TraceID:        types.GetRequestID(ctx),
		}
		if err := h.publisher.Publish(ctx, job, 0); err != nil {
			h.logger.ErrorContext(ctx, "failed to publish document delivery job",
				"notification_id", notification.ID,
				"error", err,
			)
		}
	}
}

// Get handles GET /v1/documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "document ID")
	if !ok {
		return
	}

	doc, err := h.documents.GetByID(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: doc})
}

// GetExtractedText handles GET /v1/documents/{id}/text. The text is stored
// compressed and hydrated on demand, so it is a separate endpoint rather than
// a field of the document payload.
func (h *DocumentHandler) GetExtractedText(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "document ID")
	if !ok {
		return
	}

	text, err := h.documents.GetExtractedText(r.Context(), actor.TenantID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{
		"document_id":    id,
		"extracted_text": text,
	}})
}

// Delete handles DELETE /v1/documents/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := urlID(w, r, "id", "document ID")
	if !ok {
		return
	}

	if err := h.documents.Delete(r.Context(), actor.TenantID, id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
