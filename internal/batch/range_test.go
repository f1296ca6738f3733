package batch

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	got, err := Split(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Range{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, To: 105},
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitUneven(t *testing.T) {
	got, err := Split(0, 6, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Range{{From: 0, To: 2}, {From: 3, To: 5}, {From: 6, To: 6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
	if got[2].Len() != 1 || got[0].Len() != 3 {
		t.Fatalf("len mismatch")
	}
}

func TestSplitSingle(t *testing.T) {
	got, err := Split(5, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Range{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}
}

func TestSplitInvalid(t *testing.T) {
	if _, err := Split(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := Split(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}
