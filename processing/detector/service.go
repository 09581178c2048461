package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kitvision/internal/models"
)

const remoteIOTimeout = 10 * time.Second

var errBadReply = errors.New("JSON decode error")

// RemoteDetector sends JPEG frames to a detection server over a websocket
// and reads back a JSON list of results per frame.
type RemoteDetector struct {
	serverURL string
	logger    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func DialRemoteDetector(ctx context.Context, serverURL string, logger *slog.Logger) (*RemoteDetector, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &RemoteDetector{serverURL: serverURL, logger: logger}
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *RemoteDetector) connect(ctx context.Context) error {
	d.logger.Info("connecting to detector server", "url", d.serverURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return fmt.Errorf("connect to detector server %s: %w", d.serverURL, err)
	}

	d.conn = conn
	d.logger.Info("connected to detection server")
	return nil
}

func (d *RemoteDetector) roundTrip(frame []byte) ([]models.DetectionResult, error) {
	d.conn.SetWriteDeadline(time.Now().Add(remoteIOTimeout))
	if err := d.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, err
	}

	d.conn.SetReadDeadline(time.Now().Add(remoteIOTimeout))
	_, message, err := d.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var results []models.DetectionResult
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadReply, err)
	}
	return results, nil
}

// Detect sends one frame and waits for its results. A broken connection is
// redialed once before the error is returned.
func (d *RemoteDetector) Detect(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, nil); err != nil {
		return nil, fmt.Errorf("JPEG encode error: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		if err := d.connect(ctx); err != nil {
			return nil, err
		}
	}

	results, err := d.roundTrip(buf.Bytes())
	if err != nil {
		if errors.Is(err, errBadReply) {
			return nil, err
		}

		d.logger.Warn("connection lost, reconnecting", "error", err)
		d.conn.Close()
		if err := d.connect(ctx); err != nil {
			return nil, err
		}
		if results, err = d.roundTrip(buf.Bytes()); err != nil {
			return nil, fmt.Errorf("detector server: %w", err)
		}
	}

	bounds := frame.Bounds()
	detections := make([]models.Detection, 0, len(results))
	for _, r := range results {
		det, ok := r.ToDetection(bounds.Dx(), bounds.Dy())
		if !ok {
			d.logger.Debug("dropping result without a box", "label", r.Label)
			continue
		}
		detections = append(detections, det)
	}

	return detections, nil
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	_ = d.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := d.conn.Close()
	d.conn = nil
	return err
}
