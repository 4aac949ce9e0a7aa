package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/records"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pathID parses the {id} URL parameter, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (*bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List note metadata, most recently updated first
//	@Tags			notes
//	@Produce		json
//	@Param			group		query		string	false	"Group id, empty for all groups"
//	@Param			trashed		query		bool	false	"Filter by trashed flag"
//	@Param			favorite	query		bool	false	"Filter by favorite flag"
//	@Success		200			{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	var f records.ListFilter
	if g := r.URL.Query().Get("group"); g != "" {
		id, err := uuid.Parse(g)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid group"))
			return
		}
		f.GroupID = &id
	}
	var ok bool
	if f.Trashed, ok = boolQuery(r, "trashed"); !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid trashed"))
		return
	}
	if f.Favorite, ok = boolQuery(r, "favorite"); !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid favorite"))
		return
	}

	notes, err := h.svc.ListNotes(r.Context(), f)
	if err != nil {
		writeError(w, r, "list notes", err)
		return
	}
	if notes == nil {
		notes = []models.NoteMetadata{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a note with its content
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, r, "get note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Title, req.Content, parseGroup(req.GroupID))
	if err != nil {
		writeError(w, r, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateContent handles PUT /api/notes/{id}/content.
//
//	@Summary		Replace a note's content with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Note id"
//	@Param			If-Match	header		string					false	"Checksum of the content being replaced"
//	@Param			body		body		UpdateContentRequest	true	"New content"
//	@Success		200			{object}	NoteDetail
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/content [put]
func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateContentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateContent(r.Context(), id, *req.Content, ifMatch)
	if err != nil {
		writeError(w, r, "update content", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// MigrateNote handles POST /api/notes/{id}/migrate.
//
//	@Summary		Move a note's content into its own file
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/migrate [post]
func (h *Handler) MigrateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	note, err := h.svc.InitializeFileStorage(r.Context(), id)
	if err != nil {
		writeError(w, r, "migrate note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// PatchNote handles PATCH /api/notes/{id}.
func (h *Handler) PatchNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PatchNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	var err error
	if req.Title != nil {
		err = h.svc.SetTitle(ctx, id, *req.Title)
	}
	if req.Favorite != nil && err == nil {
		err = h.svc.SetFavorite(ctx, id, *req.Favorite)
	}
	if req.Trashed != nil && err == nil {
		if *req.Trashed {
			err = h.svc.Trash(ctx, id)
		} else {
			err = h.svc.Restore(ctx, id)
		}
	}
	if req.GroupID != nil && err == nil {
		err = h.svc.MoveNote(ctx, id, parseGroup(*req.GroupID))
	}
	if err != nil {
		writeError(w, r, "patch note", err)
		return
	}

	note, err := h.svc.GetNote(ctx, id)
	if err != nil {
		writeError(w, r, "patch note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note permanently
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		writeError(w, r, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTags handles GET /api/tags.
//
//	@Summary		List tags with note counts, most used first
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TagsResponse{Tags: h.svc.Tags(r.Context())})
}

// NotesByTag handles GET /api/tags/{tag}/notes.
func (h *Handler) NotesByTag(w http.ResponseWriter, r *http.Request) {
	notes := h.svc.NotesByTag(r.Context(), chi.URLParam(r, "tag"))
	if notes == nil {
		notes = []models.NoteMetadata{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// CreateGroup handles POST /api/groups.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := h.svc.CreateGroup(r.Context(), req.Name, parseGroup(req.ParentID))
	if err != nil {
		writeError(w, r, "create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GroupChildren handles GET /api/groups/{id}/children. The nil UUID
// addresses the root.
func (h *Handler) GroupChildren(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	kids, err := h.svc.Children(r.Context(), id)
	if err != nil {
		writeError(w, r, "group children", err)
		return
	}
	writeJSON(w, http.StatusOK, kids)
}

// MoveGroup handles PATCH /api/groups/{id}.
func (h *Handler) MoveGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MoveGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.MoveGroup(r.Context(), id, parseGroup(req.ParentID)); err != nil {
		writeError(w, r, "move group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteGroup handles DELETE /api/groups/{id}.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteGroup(r.Context(), id); err != nil {
		writeError(w, r, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RebuildIndex handles POST /api/index/rebuild.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RebuildIndex(r.Context()); err != nil {
		writeError(w, r, "rebuild index", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
