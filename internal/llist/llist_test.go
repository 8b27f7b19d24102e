package llist

import (
	"reflect"
	"testing"
)

func TestInsertSorted(t *testing.T) {
	var l List[int]
	less := func(v, e int) bool { return v > e } // descending order

	for _, v := range []int{3, 1, 4, 1, 5} {
		l.InsertSorted(v, less)
	}
	want := []int{5, 4, 3, 1, 1}
	if got := l.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("InsertSorted:\nhave %v\nwant %v", got, want)
	}
}

func TestRemovePreservesOrder(t *testing.T) {
	var l List[string]
	for _, v := range []string{"a", "b", "c"} {
		l.Append(v)
	}
	if !l.Remove(func(s string) bool { return s == "b" }) {
		t.Fatalf("Remove(\"b\"):\nhave false\nwant true")
	}
	want := []string{"a", "c"}
	if got := l.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot after Remove:\nhave %v\nwant %v", got, want)
	}
	if l.Remove(func(s string) bool { return s == "z" }) {
		t.Fatalf("Remove(\"z\"):\nhave true\nwant false")
	}
}

func TestEmptyLen(t *testing.T) {
	var l List[int]
	if !l.Empty() {
		t.Fatalf("Empty on zero value:\nhave false\nwant true")
	}
	l.Append(1)
	if l.Empty() || l.Len() != 1 {
		t.Fatalf("after Append:\nhave (empty=%v len=%d)\nwant (empty=false len=1)", l.Empty(), l.Len())
	}
}
