package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/joho/godotenv"

	"songshare/internal/blob"
	"songshare/internal/config"
	"songshare/internal/database"
	"songshare/internal/domain/song"
	"songshare/internal/domain/token"
)

const sampleRate = 8000

type demoSong struct {
	Title       string
	Artist      string
	Description string
	Hz          float64
	Seconds     int
}

var demoSongs = []demoSong{
	{"Concert A", "Tuning Fork", "440 Hz reference tone", 440, 3},
	{"Low Hum", "Mains", "the sound of a 50 Hz grid", 50, 2},
	{"Middle C", "Tuning Fork", "", 261.63, 2},
	{"Dial Tone", "Exchange", "classic 425 Hz", 425, 4},
	{"High E", "Open Strings", "", 329.63, 1},
	{"Whistle", "Kettle", "short and loud", 1800, 1},
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("Migrate failed:", err)
	}

	ctx := context.Background()
	store, err := blob.Open(ctx, cfg.Blob, cfg.MaxUploadSize)
	if err != nil {
		log.Fatal("blob store:", err)
	}

	repo := song.NewRepository(db)
	svc := song.NewService(repo, store, token.NewGenerator(), song.Options{MaxUploadSize: cfg.MaxUploadSize})

	log.Println("Creating songs...")
	for _, d := range demoSongs {
		data := tone(d.Hz, d.Seconds)
		created, err := svc.Upload(ctx, song.UploadInput{
			File:        bytes.NewReader(data),
			FileName:    fmt.Sprintf("%s.wav", d.Title),
			ContentType: "audio/wav",
			Size:        int64(len(data)),
			Title:       d.Title,
			Artist:      d.Artist,
			Description: d.Description,
		})
		if err != nil {
			log.Fatalf("seed %q failed: %v", d.Title, err)
		}

		// some traffic so the analytics view has something to rank
		for i := rand.Intn(20); i > 0; i-- {
			if err := repo.IncrementDownload(ctx, created.Token); err != nil {
				log.Fatal(err)
			}
		}
		for i := rand.Intn(40); i > 0; i-- {
			if err := repo.IncrementView(ctx, created.Token); err != nil {
				log.Fatal(err)
			}
		}
		log.Printf("  %-12s by %-13s -> /api/songs/%s", d.Title, d.Artist, created.Token)
	}

	log.Println("Seed completed!")
}

// tone renders a mono 16-bit PCM sine wave as a WAV file.
func tone(hz float64, seconds int) []byte {
	samples := sampleRate * seconds
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+samples*2))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(samples*2))
	for i := 0; i < samples; i++ {
		v := math.Sin(2 * math.Pi * hz * float64(i) / sampleRate)
		binary.Write(&buf, binary.LittleEndian, int16(v*math.MaxInt16*0.6))
	}
	return buf.Bytes()
}
