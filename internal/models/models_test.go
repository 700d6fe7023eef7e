package models

import "testing"

func TestParseStorySize(t *testing.T) {
	tests := []struct {
		in      string
		want    StorySize
		wantErr bool
	}{
		{"", SizeShort, false},
		{"Short", SizeShort, false},
		{" medium ", SizeMedium, false},
		{"LONG", SizeLong, false},
		{"epic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStorySize(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStorySize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStorySize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStoryRequest_WithDefaults(t *testing.T) {
	got := StoryRequest{Topic: "  a cat on the moon "}.WithDefaults()
	if got.Topic != "a cat on the moon" {
		t.Errorf("Topic = %q", got.Topic)
	}
	if got.Mood != DefaultMood || got.Language != DefaultLanguage || got.Size != SizeShort {
		t.Errorf("defaults not applied: %+v", got)
	}

	kept := StoryRequest{Topic: "x", Mood: "sad", Language: "Tamil", Size: SizeLong}.WithDefaults()
	if kept.Mood != "sad" || kept.Language != "Tamil" || kept.Size != SizeLong {
		t.Errorf("explicit values overwritten: %+v", kept)
	}
}
