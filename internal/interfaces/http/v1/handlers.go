package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/divyanshwrite/worldflow/internal/application/commands"
	"github.com/divyanshwrite/worldflow/internal/domain/graph"
	apperrors "github.com/divyanshwrite/worldflow/internal/errors"
	"github.com/divyanshwrite/worldflow/internal/gateway"
	"github.com/divyanshwrite/worldflow/internal/interfaces/http/response"
	"github.com/divyanshwrite/worldflow/internal/linking"
	"github.com/divyanshwrite/worldflow/internal/validation"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler implements the v1 routes.
type Handler struct {
	store    SnapshotReader
	linking  Linking
	commands Commands
	logger   *zap.Logger
}

// SnapshotResponse is the graph as the renderer draws it.
type SnapshotResponse struct {
	WorkspaceID     graph.WorkspaceID `json:"workspaceId"`
	Nodes           []graph.Node      `json:"nodes"`
	Edges           []graph.Edge      `json:"edges"`
	RenderableEdges []graph.Edge      `json:"renderableEdges"`
}

// PositionRequest carries a point in scene space. All three coordinates are
// required.
type PositionRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
	Z *float64 `json:"z" validate:"required"`
}

func (p PositionRequest) position() graph.Position {
	return graph.Position{X: *p.X, Y: *p.Y, Z: *p.Z}
}

// CanvasClickRequest is a click on empty space.
type CanvasClickRequest = PositionRequest

type healthResponse struct {
	Status    string            `json:"status"`
	Workspace graph.WorkspaceID `json:"workspaceId,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.store != nil {
		resp.Workspace = h.store.Snapshot().WorkspaceID
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	response.JSON(w, http.StatusOK, SnapshotResponse{
		WorkspaceID:     snap.WorkspaceID,
		Nodes:           snap.Nodes,
		Edges:           snap.Edges,
		RenderableEdges: snap.Renderable(),
	})
}

func (h *Handler) canvasClick(w http.ResponseWriter, r *http.Request) {
	var req CanvasClickRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.linking.OnCanvasClicked(r.Context(), req.position())
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, n)
}

func (h *Handler) nodeClick(w http.ResponseWriter, r *http.Request) {
	id := graph.NodeID(chi.URLParam(r, "nodeId"))
	res, err := h.linking.OnNodeClicked(r.Context(), id)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == linking.OutcomeLinked {
		status = http.StatusCreated
	}
	response.JSON(w, status, res)
}

func (h *Handler) linkingState(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.linking.State())
}

func (h *Handler) enterLinking(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.linking.EnterLinkingMode())
}

func (h *Handler) exitLinking(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.linking.ExitLinkingMode())
}

func (h *Handler) saveNode(w http.ResponseWriter, r *http.Request) {
	var cmd commands.SaveNodeFieldsCommand
	if !h.decodeBody(w, r, &cmd) {
		return
	}
	cmd.NodeID = graph.NodeID(chi.URLParam(r, "nodeId"))

	n, err := h.commands.SaveNodeFields(r.Context(), cmd)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, n)
}

// moveNode stores the position a drag ended at.
func (h *Handler) moveNode(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	pos := req.position()
	id := graph.NodeID(chi.URLParam(r, "nodeId"))

	n, err := h.commands.UpdateNode(r.Context(), id, gateway.UpdateNodeInput{Position: &pos})
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, n)
}

func (h *Handler) deleteNode(w http.ResponseWriter, r *http.Request) {
	id := graph.NodeID(chi.URLParam(r, "nodeId"))
	if err := h.commands.DeleteNode(r.Context(), id); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) updateEdge(w http.ResponseWriter, r *http.Request) {
	var cmd commands.UpdateEdgeCommand
	if !h.decodeBody(w, r, &cmd) {
		return
	}
	cmd.EdgeID = graph.EdgeID(chi.URLParam(r, "edgeId"))

	e, err := h.commands.UpdateEdge(r.Context(), cmd)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, e)
}

func (h *Handler) deleteEdge(w http.ResponseWriter, r *http.Request) {
	id := graph.EdgeID(chi.URLParam(r, "edgeId"))
	if err := h.commands.DeleteEdge(r.Context(), id); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.NoContent(w)
}

// decode reads the body into v and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if !h.decodeBody(w, r, v) {
		return false
	}
	if err := validation.Struct(v); err != nil {
		response.Error(w, r, h.logger, err)
		return false
	}
	return true
}

// decodeBody reads the body into v; the commands validate themselves.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		response.Error(w, r, h.logger, apperrors.Validation(apperrors.CodeInvalidInput, msg).
			WithDetails(err.Error()).
			WithCause(err).
			Build())
		return false
	}
	return true
}
