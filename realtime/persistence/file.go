package persistence

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const DefaultRetention = 100

// topicFile is the on-disk layout of one topic.
type topicFile struct {
	Topic    string   `json:"topic"`
	Messages []Record `json:"messages"`
}

// FileSink keeps the most recent records of each topic in its own JSON file.
type FileSink struct {
	dir       string
	retention int
	mu        sync.Mutex
}

func NewFileSink(dir string, retention int) *FileSink {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &FileSink{dir: dir, retention: retention}
}

// fileNames maps a topic to a file name one-to-one. Lowercase base32 stays
// valid on case-insensitive filesystems and keeps a MaxTopicLength topic
// under the usual 255 byte name limit.
var fileNames = base32.HexEncoding.WithPadding(base32.NoPadding)

func (s *FileSink) path(topic string) string {
	name := strings.ToLower(fileNames.EncodeToString([]byte(topic)))
	return filepath.Join(s.dir, name+".json")
}

func (s *FileSink) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load(rec.Topic)
	if err != nil {
		return err
	}
	tf.Messages = append(tf.Messages, rec)
	if len(tf.Messages) > s.retention {
		tf.Messages = tf.Messages[len(tf.Messages)-s.retention:]
	}
	return s.write(tf)
}

// Load returns the stored records of topic, oldest first.
func (s *FileSink) Load(topic string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load(topic)
	if err != nil {
		return nil, err
	}
	return tf.Messages, nil
}

func (s *FileSink) Close() error { return nil }

func (s *FileSink) load(topic string) (topicFile, error) {
	data, err := os.ReadFile(s.path(topic))
	if os.IsNotExist(err) {
		return topicFile{Topic: topic}, nil
	}
	if err != nil {
		return topicFile{}, fmt.Errorf("read topic file: %w", err)
	}

	var tf topicFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return topicFile{}, fmt.Errorf("parse topic file: %w", err)
	}
	return tf, nil
}

// write replaces the topic file atomically.
func (s *FileSink) write(tf topicFile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create persistence directory: %w", err)
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal topic file: %w", err)
	}

	path := s.path(tf.Topic)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
