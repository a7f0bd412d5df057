package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenizeStopWordsAndNonASCII(t *testing.T) {
	got := Tokenize("The quick brown fox-jumps over2 CAFÉ")
	want := []string{"quick", "brown", "fox", "jumps", "over2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeEmpty(t *testing.T) {
	got := Tokenize("")
	if len(got) != 0 {
		t.Fatalf("Tokenize(\"\") = %v, want empty", got)
	}
}

func TestTokenizeLowercases(t *testing.T) {
	got := Tokenize("APPLE Banana")
	want := []string{"apple", "banana"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeNoStopWords(t *testing.T) {
	tk := New(nil)
	got := tk.Tokenize("the quick fox")
	want := []string{"the", "quick", "fox"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeTrailingPunctuation(t *testing.T) {
	got := Tokenize("apple, banana.")
	want := []string{"apple", "banana"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}
