// Package rest exposes the mount manager over a small JSON API.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

const maxBodyBytes = 64 << 10

// MountService is the subset of the mount manager the API calls.
type MountService interface {
	Mount(ctx context.Context, req mounts.MountRequest) (mounts.MountResult, error)
	Unmount(ctx context.Context, mountpoint string, opts mounts.UnmountOptions) error
	ListMounted(ctx context.Context) []mounts.MountRecord
}

// MountHandler serves /api/v1/mounts.
type MountHandler struct {
	svc MountService
	// onChange runs after a successful mount or unmount.
	onChange func()
}

// NewMountHandler creates a MountHandler. onChange may be nil.
func NewMountHandler(svc MountService, onChange func()) *MountHandler {
	return &MountHandler{svc: svc, onChange: onChange}
}

// Routes registers the handler under r.
func (h *MountHandler) Routes(r chi.Router) {
	r.Route("/mounts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/", h.Delete)
	})
}

// CreateMountRequest is the request body for POST /api/v1/mounts.
type CreateMountRequest struct {
	Server     string `json:"server"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Mountpoint string `json:"mountpoint,omitempty"`
}

// Create handles POST /api/v1/mounts.
func (h *MountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateMountRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, mounts.NewError(mounts.KindInvalidRequest, "invalid request body"))
		return
	}

	req := mounts.MountRequest{
		Server:     body.Server,
		Username:   body.Username,
		Mountpoint: body.Mountpoint,
	}
	if body.Password != "" {
		req.Password = []byte(body.Password)
	}

	res, err := h.svc.Mount(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyMounted {
		status = http.StatusOK
	} else {
		h.changed()
	}
	WriteJSON(w, status, mounts.MountInfo{Server: res.Server, Mountpoint: res.Mountpoint})
}

// Delete handles DELETE /api/v1/mounts?mountpoint=...&force=true.
func (h *MountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mp := q.Get("mountpoint")
	force := false
	if v := q.Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, mounts.Errorf(mounts.KindInvalidRequest, "invalid force value %q", v))
			return
		}
		force = b
	}

	if err := h.svc.Unmount(r.Context(), mp, mounts.UnmountOptions{Force: force}); err != nil {
		WriteError(w, err)
		return
	}
	h.changed()
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/mounts. It never fails.
func (h *MountHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, mounts.Infos(h.svc.ListMounted(r.Context())))
}

func (h *MountHandler) changed() {
	if h.onChange == nil {
		return
	}
	log.Debug().Msg("Mount list changed via REST")
	h.onChange()
}
