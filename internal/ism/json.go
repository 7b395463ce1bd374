package ism

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope is the versioned JSON export wrapper.
type Envelope struct {
	Version    int    `json:"version"`
	ExportedAt string `json:"exportedAt"`
	Song       *Song  `json:"song"`
}

// Marshal serializes a song into the version-1 export envelope.
func Marshal(s *Song) ([]byte, error) {
	env := Envelope{
		Version:    1,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Song:       s,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal song: %w", err)
	}
	return data, nil
}

// Unmarshal reads a version-1 export envelope back into a song.
func Unmarshal(data []byte) (*Song, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal song: %w", err)
	}
	if env.Version != 1 {
		return nil, fmt.Errorf("unsupported song version %d", env.Version)
	}
	if env.Song == nil {
		return nil, fmt.Errorf("envelope has no song")
	}
	return env.Song, nil
}

// SaveBundle writes the song as a gzipped JSON bundle.
func SaveBundle(s *Song, path string) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	if _, err := gzWriter.Write(data); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

// LoadBundle reads a gzipped JSON bundle back into a song.
func LoadBundle(path string) (*Song, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	defer gzReader.Close()

	data, err := io.ReadAll(gzReader)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return Unmarshal(data)
}
