package models

import (
	"errors"
	"testing"

	"channelpress/internal/platform"
)

func TestValidateThread(t *testing.T) {
	p := &Post{Variant: platform.VariantThread, Thread: []ThreadItem{{Order: 1, Text: "a"}}}
	if err := p.Validate(); err != nil {
		t.Fatalf("valid thread rejected: %v", err)
	}

	p = &Post{Variant: platform.VariantThread}
	if err := p.Validate(); !errors.Is(err, ErrVariantMismatch) {
		t.Fatalf("empty thread accepted: %v", err)
	}

	p = &Post{Variant: platform.VariantThread, Text: "stray", Thread: []ThreadItem{{Order: 1, Text: "a"}}}
	if err := p.Validate(); !errors.Is(err, ErrVariantMismatch) {
		t.Fatalf("thread with top-level text accepted: %v", err)
	}
}

func TestValidateRegular(t *testing.T) {
	p := &Post{Variant: platform.VariantRegular, Text: "hello"}
	if err := p.Validate(); err != nil {
		t.Fatalf("valid regular post rejected: %v", err)
	}

	p = &Post{Variant: platform.VariantRegular}
	if err := p.Validate(); !errors.Is(err, ErrEmptyPost) {
		t.Fatalf("empty post accepted: %v", err)
	}

	p = &Post{Variant: platform.VariantRegular, Text: "x", Thread: []ThreadItem{{Order: 1}}}
	if err := p.Validate(); !errors.Is(err, ErrVariantMismatch) {
		t.Fatalf("regular post with thread items accepted: %v", err)
	}
}

func TestValidateUnknownVariant(t *testing.T) {
	p := &Post{Variant: "carousel", Text: "x"}
	if err := p.Validate(); !errors.Is(err, ErrVariantMismatch) {
		t.Fatalf("unknown variant accepted: %v", err)
	}
}
