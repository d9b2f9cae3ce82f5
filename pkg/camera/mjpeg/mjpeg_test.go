package mjpeg

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parakeetlabs/rehearse/pkg/camera"
)

func encodeFrame(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return buf.Bytes()
}

// streamHandler serves frames as a multipart/x-mixed-replace stream and then
// blocks until the client disconnects.
func streamHandler(frames ...[]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
		w.WriteHeader(http.StatusOK)
		for _, frame := range frames {
			part, err := mw.CreatePart(map[string][]string{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			part.Write(frame)
			w.(http.Flusher).Flush()
		}
		<-r.Context().Done()
	}
}

func TestOpenGrabsDecodedFrames(t *testing.T) {
	frame := encodeFrame(t, color.RGBA{R: 200, A: 255})
	srv := httptest.NewServer(streamHandler(frame))
	defer srv.Close()

	opener := &Opener{URL: srv.URL}
	src, err := opener.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	var img image.Image
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		img, err = src.Grab(context.Background())
		if err == nil {
			break
		}
		if !errors.Is(err, camera.ErrNotReady) {
			t.Fatalf("Grab: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if img == nil {
		t.Fatal("no frame arrived before deadline")
	}
	if got := img.Bounds(); got.Dx() != 8 || got.Dy() != 8 {
		t.Fatalf("frame bounds = %v, want 8x8", got)
	}
}

func TestOpenRejectsNonStreamResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not a camera</html>"))
	}))
	defer srv.Close()

	opener := &Opener{URL: srv.URL}
	if _, err := opener.Open(context.Background()); err == nil {
		t.Fatal("Open accepted a non-MJPEG response")
	}
}

func TestGrabAfterCloseFails(t *testing.T) {
	frame := encodeFrame(t, color.RGBA{G: 120, A: 255})
	srv := httptest.NewServer(streamHandler(frame))
	defer srv.Close()

	opener := &Opener{URL: srv.URL}
	src, err := opener.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := src.Grab(context.Background()); err == nil {
		t.Fatal("Grab succeeded on a closed source")
	}
}
