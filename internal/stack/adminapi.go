package stack

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/carlinkd/cartrustd/internal/peerstore"
)

// PendingVerifier surfaces and resolves visual-confirmation decisions
// currently blocking a pairing attempt (spec.md §4.1, "request visual
// verification from the host").
type PendingVerifier interface {
	PendingVerifications() []PendingVerification
	ConfirmVerification(token string, accepted bool) error
}

// AdminAPI exposes associated-peer management over plain JSON/HTTP (spec.md
// §4.4: "list/rename/forget associated peers"), the surface cartrustctl
// talks to.
type AdminAPI struct {
	peers    peerstore.Store
	verifier PendingVerifier
}

// NewAdminAPI builds an AdminAPI over peers. verifier may be nil, in which
// case the pairing endpoints report no pending verifications.
func NewAdminAPI(peers peerstore.Store, verifier PendingVerifier) *AdminAPI {
	return &AdminAPI{peers: peers, verifier: verifier}
}

// Handler returns the admin HTTP mux:
//
//	GET    /peers            list every associated peer
//	GET    /peers/{deviceID} show one associated peer
//	DELETE /peers/{deviceID}  forget one peer (or "all" to forget every peer)
//	POST   /peers/{deviceID}/rename  {"name": "..."} rename one peer
//	GET    /pairing/pending  list pairing attempts awaiting a host decision
//	POST   /pairing/{token}/confirm  {"accept": true|false} resolve one
func (a *AdminAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /peers", a.listPeers)
	mux.HandleFunc("GET /peers/{deviceID}", a.showPeer)
	mux.HandleFunc("DELETE /peers/{deviceID}", a.forgetPeer)
	mux.HandleFunc("POST /peers/{deviceID}/rename", a.renamePeer)
	mux.HandleFunc("GET /pairing/pending", a.listPending)
	mux.HandleFunc("POST /pairing/{token}/confirm", a.confirmPending)
	return mux
}

var errPeerNotFound = errors.New("peer not found")

type peerView struct {
	DeviceID      string `json:"device_id"`
	Name          string `json:"name"`
	MACAddress    string `json:"mac_address"`
	IsUserRenamed bool   `json:"is_user_renamed"`
}

func (a *AdminAPI) listPeers(w http.ResponseWriter, r *http.Request) {
	records, err := a.peers.RetrieveAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]peerView, 0, len(records))
	for _, rec := range records {
		views = append(views, peerView{
			DeviceID:      rec.DeviceID.String(),
			Name:          rec.Name,
			MACAddress:    rec.MACAddress,
			IsUserRenamed: rec.IsUserRenamed,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *AdminAPI) showPeer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("deviceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	records, err := a.peers.RetrieveAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, rec := range records {
		if rec.DeviceID == id {
			writeJSON(w, http.StatusOK, peerView{
				DeviceID:      rec.DeviceID.String(),
				Name:          rec.Name,
				MACAddress:    rec.MACAddress,
				IsUserRenamed: rec.IsUserRenamed,
			})
			return
		}
	}
	writeError(w, http.StatusNotFound, errPeerNotFound)
}

func (a *AdminAPI) forgetPeer(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("deviceID")
	if raw == "all" {
		if err := a.peers.ClearAll(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.peers.Clear(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (a *AdminAPI) renamePeer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("deviceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.peers.Rename(r.Context(), id, req.Name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, peerstore.ErrEmptyName) || errors.Is(err, peerstore.ErrNotFound) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *AdminAPI) listPending(w http.ResponseWriter, r *http.Request) {
	if a.verifier == nil {
		writeJSON(w, http.StatusOK, []PendingVerification{})
		return
	}
	writeJSON(w, http.StatusOK, a.verifier.PendingVerifications())
}

type confirmRequest struct {
	Accept bool `json:"accept"`
}

func (a *AdminAPI) confirmPending(w http.ResponseWriter, r *http.Request) {
	if a.verifier == nil {
		writeError(w, http.StatusNotFound, ErrPendingVerificationNotFound)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token := r.PathValue("token")
	if err := a.verifier.ConfirmVerification(token, req.Accept); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrPendingVerificationNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
