package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// artifactPatch holds the panel fields a client may change.
type artifactPatch struct {
	IsVisible   *bool               `json:"isVisible"`
	BoundingBox *domain.BoundingBox `json:"boundingBox"`
}

func (p artifactPatch) apply(a domain.UIArtifact) domain.UIArtifact {
	if p.IsVisible != nil {
		a.IsVisible = *p.IsVisible
	}
	if p.BoundingBox != nil {
		a.BoundingBox = *p.BoundingBox
	}
	return a
}

func (h *Handler) GetArtifact(c *gin.Context) {
	c.JSON(http.StatusOK, workspace(c).Documents.Artifact())
}

func (h *Handler) PutArtifact(c *gin.Context) {
	var body domain.UIArtifact
	if !bindJSON(c, &body) {
		return
	}
	if body.Kind != "" {
		if _, err := domain.ParseKind(string(body.Kind)); err != nil {
			writeError(c, err)
			return
		}
	}
	docs := workspace(c).Documents
	docs.ReplaceArtifact(body)
	c.JSON(http.StatusOK, docs.Artifact())
}

func (h *Handler) PatchArtifact(c *gin.Context) {
	var body artifactPatch
	if !bindJSON(c, &body) {
		return
	}
	c.JSON(http.StatusOK, workspace(c).Documents.SetArtifact(body.apply))
}

func (h *Handler) ResetArtifact(c *gin.Context) {
	docs := workspace(c).Documents
	docs.ResetArtifact()
	c.JSON(http.StatusOK, docs.Artifact())
}

func (h *Handler) GetArtifactMetadata(c *gin.Context) {
	md := workspace(c).Documents.ArtifactMetadata(c.Param("documentId"))
	if md == nil {
		md = map[string]any{}
	}
	c.JSON(http.StatusOK, md)
}

func (h *Handler) PutArtifactMetadata(c *gin.Context) {
	var body map[string]any
	if !bindJSON(c, &body) {
		return
	}
	workspace(c).Documents.SetArtifactMetadata(c.Param("documentId"), body)
	c.Status(http.StatusNoContent)
}

// ServeArtifactWS pushes the artifact state to the client, at most once per
// frame interval, and applies patches the client sends back.
func (h *Handler) ServeArtifactWS(c *gin.Context) {
	docs := workspace(c).Documents
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, unsubscribe := docs.SubscribeArtifact()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(64 << 10)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var p artifactPatch
			if err := json.Unmarshal(data, &p); err != nil {
				slog.Debug("ignoring artifact patch", "error", err)
				continue
			}
			docs.SetArtifact(p.apply)
		}
	}()

	write := func(a domain.UIArtifact) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(a) == nil
	}
	if !write(docs.Artifact()) {
		return
	}

	frame := time.NewTicker(config.ArtifactFrameInterval)
	defer frame.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	var pending *domain.UIArtifact
	for {
		select {
		case <-done:
			return
		case a, ok := <-updates:
			if !ok {
				return
			}
			pending = &a
		case <-frame.C:
			if pending == nil {
				continue
			}
			if !write(*pending) {
				return
			}
			pending = nil
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
