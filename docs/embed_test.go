package docs

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestEveryTopicHasAFile(t *testing.T) {
	topics, err := Topics()
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) == 0 {
		t.Fatal("no topics")
	}
	for _, topic := range topics {
		_, content, err := Read(topic.ID)
		if err != nil {
			t.Errorf("%s: %v", topic.ID, err)
			continue
		}
		if !strings.HasPrefix(content, "# ") {
			t.Errorf("%s does not start with a heading", topic.File)
		}
	}
}

func TestReadIgnoresCase(t *testing.T) {
	topic, content, err := Read(" Tools ")
	if err != nil {
		t.Fatal(err)
	}
	if topic.ID != "tools" || !strings.Contains(content, "modify_visio_diagram") {
		t.Errorf("topic = %+v", topic)
	}
	if _, _, err := Read("nope"); err == nil {
		t.Error("expected an error for an unknown topic")
	}
}

func TestTopicsFromBrokenIndex(t *testing.T) {
	fsys := fstest.MapFS{indexPath: &fstest.MapFile{Data: []byte("topics: [")}}
	if _, err := topicsFrom(fsys); err == nil {
		t.Error("expected a parse error")
	}
	if _, err := topicsFrom(fstest.MapFS{}); err == nil {
		t.Error("expected a missing index error")
	}
}
