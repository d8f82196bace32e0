package health

import (
	"net/http"
	"time"

	"github.com/hilthontt/bookingsync/internal/infrastructure/json"
)

// StateReader reports the socket state. *realtime.ConnectionManager
// satisfies it.
type StateReader interface {
	Connected() bool
}

type Handler struct {
	conn StateReader
}

func NewHandler(conn StateReader) *Handler {
	return &Handler{conn: conn}
}

// GetHealth answers 200 while the process runs; connectivity is reported,
// not judged.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	data := healthResponse{
		Status:    "ok",
		Connected: h.conn.Connected(),
		Timestamp: time.Now().UTC(),
	}
	json.Write(w, http.StatusOK, data)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Connected bool      `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}
