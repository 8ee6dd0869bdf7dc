package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/andresmejia3/facedb/internal/types"
	"github.com/andresmejia3/facedb/internal/utils" // Using the SafeCommand wrapper
)

// Request opcodes understood by python/encode_worker.py.
const (
	opLocate byte = 'L'
	opEncode byte = 'E'
)

const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxReply guards against a corrupted length header allocating gigabytes.
const maxReply = 64 << 20

// PythonWorker drives a face_recognition subprocess over stdin and a side-channel pipe.
type PythonWorker struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
}

// NewPythonWorker starts `python -u script` with the reply pipe attached as FD 3.
func NewPythonWorker(ctx context.Context, python, script string) (*PythonWorker, error) {
	py := utils.NewSafeCommand(ctx, python, "-u", script)

	// Create a side-channel pipe (FD 3) so stray prints on stdout cannot corrupt replies
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker failed to start: %w", err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// Communicate sends one framed request and reads one framed reply.
// Protocol: [uint32 Length][Data] in both directions.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxReply {
		return nil, fmt.Errorf("reply of %d bytes exceeds limit", respLen)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Locate asks the worker for face boxes in a packed RGB frame.
func (w *PythonWorker) Locate(rgb []byte, width, height int, strategy types.Strategy) ([]image.Rectangle, error) {
	req := newRequest(opLocate, rgb, width, height)
	req.WriteByte(byte(len(strategy)))
	req.WriteString(string(strategy))

	body, err := w.roundTrip(req.Bytes())
	if err != nil {
		return nil, err
	}
	boxes, err := readBoxes(body)
	if err != nil {
		return nil, fmt.Errorf("malformed locate reply: %w", err)
	}
	return boxes, nil
}

// Encode asks the worker for one embedding per box, in box order.
func (w *PythonWorker) Encode(rgb []byte, width, height int, boxes []image.Rectangle) ([]types.Embedding, error) {
	req := newRequest(opEncode, rgb, width, height)
	writeBoxes(req, boxes)

	body, err := w.roundTrip(req.Bytes())
	if err != nil {
		return nil, err
	}
	embs, err := readEmbeddings(body)
	if err != nil {
		return nil, fmt.Errorf("malformed encode reply: %w", err)
	}
	return embs, nil
}

// Close shuts the pipes and waits for the process to exit.
func (w *PythonWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		return w.Cmd.Wait()
	}
	return nil
}

// roundTrip sends a request and strips the status byte off the reply.
// Protocol: [Status:0][Body] or [Status:1][MsgLen][Msg]
func (w *PythonWorker) roundTrip(req []byte) (*bytes.Reader, error) {
	resp, err := w.Communicate(req)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty reply from python worker")
	}

	switch status {
	case statusOK:
		return r, nil
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("python worker error: (unreadable message)")
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("python worker error: (truncated message)")
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	default:
		return nil, fmt.Errorf("unknown python worker status %d", status)
	}
}

// newRequest writes [Op][Width][Height][RGB].
func newRequest(op byte, rgb []byte, width, height int) *bytes.Buffer {
	buf := bytes.NewBuffer(make([]byte, 0, 9+len(rgb)+64))
	buf.WriteByte(op)
	binary.Write(buf, binary.BigEndian, uint32(width))
	binary.Write(buf, binary.BigEndian, uint32(height))
	buf.Write(rgb)
	return buf
}

// Boxes travel as [Count] then [top, right, bottom, left] int32 each, the
// face_recognition ordering.
func writeBoxes(buf *bytes.Buffer, boxes []image.Rectangle) {
	binary.Write(buf, binary.BigEndian, uint32(len(boxes)))
	for _, b := range boxes {
		binary.Write(buf, binary.BigEndian, [4]int32{
			int32(b.Min.Y), int32(b.Max.X), int32(b.Max.Y), int32(b.Min.X),
		})
	}
}

func readBoxes(r *bytes.Reader) ([]image.Rectangle, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if int64(n)*16 > int64(r.Len()) {
		return nil, fmt.Errorf("box count %d exceeds payload", n)
	}
	boxes := make([]image.Rectangle, 0, n)
	for i := uint32(0); i < n; i++ {
		var trbl [4]int32
		if err := binary.Read(r, binary.BigEndian, &trbl); err != nil {
			return nil, err
		}
		boxes = append(boxes, image.Rect(int(trbl[3]), int(trbl[0]), int(trbl[1]), int(trbl[2])))
	}
	return boxes, nil
}

// Embeddings travel as [Count][Dim] then Count*Dim float32.
func readEmbeddings(r *bytes.Reader) ([]types.Embedding, error) {
	var n, dim uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
		return nil, err
	}
	if int64(n)*int64(dim)*4 > int64(r.Len()) {
		return nil, fmt.Errorf("%d embeddings of %d dims exceed payload", n, dim)
	}

	embs := make([]types.Embedding, 0, n)
	raw := make([]byte, dim*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}
		vec := make(types.Embedding, dim)
		for j := range vec {
			vec[j] = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[j*4:])))
		}
		embs = append(embs, vec)
	}
	return embs, nil
}
