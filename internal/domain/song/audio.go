package song

import (
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen matches the read limit mimetype uses by default.
const sniffLen = 3072

var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".aif":  "audio/aiff",
	".aiff": "audio/aiff",
	".weba": "audio/webm",
	".webm": "audio/webm",
	".amr":  "audio/amr",
	".mid":  "audio/midi",
	".midi": "audio/midi",
}

// Containers that carry audio but sniff as something else.
var audioContainers = map[string]bool{
	"application/ogg": true,
	"video/webm":      true,
	"video/mp4":       true,
	"video/3gpp":      true,
}

// declaredAudioType returns the audio type claimed by the client through the
// part's content type or, failing that, the file extension.
func declaredAudioType(contentType, fileName string) (string, bool) {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "audio/") {
		return mt, true
	}
	if mt, ok := audioExtensions[strings.ToLower(filepath.Ext(fileName))]; ok {
		return mt, true
	}
	return "", false
}

// sniff reads up to sniffLen bytes from r and detects their type.
func sniff(r io.Reader) ([]byte, *mimetype.MIME, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, err
	}
	buf = buf[:n]
	return buf, mimetype.Detect(buf), nil
}

// audioContentType decides the stored content type. The sniffed type wins
// when it is audio; a known container falls back to the declared type.
func audioContentType(detected *mimetype.MIME, declared string) (string, bool) {
	for m := detected; m != nil; m = m.Parent() {
		mt, _, _ := mime.ParseMediaType(m.String())
		if strings.HasPrefix(mt, "audio/") {
			return mt, true
		}
		if audioContainers[mt] {
			return declared, true
		}
	}
	return "", false
}
