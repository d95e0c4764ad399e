package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tvinspection/tvinspect/pkg/client"
	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/draft"
	"github.com/tvinspection/tvinspect/pkg/export"
	"github.com/tvinspection/tvinspect/pkg/normalize"
	"github.com/tvinspection/tvinspect/pkg/schema"
	"github.com/tvinspection/tvinspect/pkg/validate"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type schemaField struct {
	schema.Field
	Required bool `json:"required"`
}

type schemaSection struct {
	Name   string        `json:"name"`
	Title  string        `json:"title"`
	Fields []schemaField `json:"fields"`
}

type validationResponse struct {
	IsValid  bool            `json:"is_valid"`
	Errors   validate.Report `json:"errors"`
	Messages []string        `json:"messages"`
}

func newValidationResponse(report validate.Report) validationResponse {
	messages := validate.FormatErrors(report)
	if messages == nil {
		messages = []string{}
	}
	return validationResponse{IsValid: report.IsValid(), Errors: report, Messages: messages}
}

// draftView is the JSON shape of a draft.
type draftView struct {
	ID         uuid.UUID                 `json:"id"`
	RemoteID   string                    `json:"remote_id,omitempty"`
	UpdatedAt  time.Time                 `json:"updated_at"`
	Dirty      bool                      `json:"dirty"`
	Record     schema.Record             `json:"record"`
	Validation validationResponse        `json:"validation"`
	Completion validate.CompletionStatus `json:"completion"`
}

func viewOf(d *draft.Draft) draftView {
	return draftView{
		ID:         d.ID(),
		RemoteID:   d.RemoteID(),
		UpdatedAt:  d.UpdatedAt(),
		Dirty:      d.IsDirty(),
		Record:     d.Record(),
		Validation: newValidationResponse(d.Validate()),
		Completion: d.Completion(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"read_only": s.IsReadOnly(),
		"time":      time.Now().Unix(),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	rules := validate.New().Rules()
	sections := make([]schemaSection, 0, len(schema.Sections)+1)
	for _, name := range append(append([]string{}, schema.Sections...), schema.Personnel) {
		sec := schemaSection{Name: name, Title: schema.SectionTitle(name)}
		for _, f := range schema.SectionFields(name) {
			rs, _ := rules.Lookup(name, f.Name)
			sec.Fields = append(sec.Fields, schemaField{Field: f, Required: rs.Required})
		}
		sections = append(sections, sec)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"title":        constants.FormTitle,
		"authority":    constants.Authority,
		"form_id":      constants.FormID,
		"form_version": constants.FormVersion,
		"sections":     sections,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	respondJSON(w, http.StatusOK, newValidationResponse(validate.ValidateRecord(rec)))
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if rec == nil {
		rec = schema.Record{}
	}
	respondJSON(w, http.StatusOK, normalize.Normalize(rec))
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	respondJSON(w, http.StatusOK, validate.Completion(rec))
}

func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.store.List(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, drafts)
}

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	d := draft.New()
	if rec != nil {
		d = draft.Hydrate(rec)
	}
	if err := s.store.Save(r.Context(), d); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewOf(d))
}

// loadDraft resolves the {id} route variable, writing the error response
// itself when it fails.
func (s *Server) loadDraft(w http.ResponseWriter, r *http.Request) (*draft.Draft, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid draft id")
		return nil, false
	}
	d, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return nil, false
	}
	return d, true
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDraft(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewOf(d))
}

// handleUpdateDraft replaces the draft's record, keeping its identity.
func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	old, ok := s.loadDraft(w, r)
	if !ok {
		return
	}
	rec, err := decodeRecord(w, r)
	if err != nil || rec == nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	opts := []draft.Option{draft.WithID(old.ID())}
	if old.RemoteID() != "" {
		opts = append(opts, draft.WithRemoteID(old.RemoteID()))
	}
	d := draft.Hydrate(rec, opts...)
	if err := s.store.Save(r.Context(), d); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(d))
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid draft id")
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleSubmitDraft validates the draft and creates or updates the backend
// record. The draft is kept, now pointing at the backend record.
func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		respondError(w, http.StatusServiceUnavailable, "No backend configured")
		return
	}
	if s.IsReadOnly() {
		respondError(w, http.StatusForbidden, "Server is in read-only mode")
		return
	}
	d, ok := s.loadDraft(w, r)
	if !ok {
		return
	}

	payload, err := d.Submission()
	if err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			resp := newValidationResponse(verr.Report)
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":    "Please fix the validation errors before submitting",
				"errors":   resp.Errors,
				"messages": resp.Messages,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var saved schema.Record
	if d.RemoteID() == "" {
		saved, err = s.backend.CreateForm(r.Context(), payload)
	} else {
		saved, err = s.backend.UpdateForm(r.Context(), d.RemoteID(), payload)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("draft", d.ID().String()).Msg("submission failed")
		// the attempt counter moved
		if saveErr := s.store.Save(r.Context(), d); saveErr != nil {
			s.logger.Error().Err(saveErr).Msg("draft store")
		}
		respondError(w, http.StatusBadGateway, client.Message(err))
		return
	}

	if id, ok := schema.TextOf(saved["id"]); ok && id != "" {
		d.SetRemoteID(id)
	}
	d.MarkSaved()
	if err := s.store.Save(r.Context(), d); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.logger.Info().Str("draft", d.ID().String()).Str("remote_id", d.RemoteID()).Int("attempt", d.Attempts()).Msg("draft submitted")
	respondJSON(w, http.StatusOK, map[string]any{
		"draft":  viewOf(d),
		"record": saved,
	})
}

func (s *Server) handleExportDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDraft(w, r)
	if !ok {
		return
	}
	broadcaster, _ := schema.TextOf(d.Get(schema.AdministrativeInfo, "name_of_broadcaster"))
	name := strings.ReplaceAll(strings.TrimSpace(broadcaster), " ", "_")
	if name == "" {
		name = "draft"
	}
	f, err := export.Workbook(d.Record())
	if err != nil {
		s.logger.Error().Err(err).Msg("export draft")
		respondError(w, http.StatusInternalServerError, "Failed to build workbook")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.xlsx"`, name, d.ID()))
	if err := f.Write(w); err != nil {
		s.logger.Warn().Err(err).Msg("export draft")
	}
}
