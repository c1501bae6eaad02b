package coursequiz

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitReconstructsNormalizedText(t *testing.T) {
	texts := []string{
		"One. Two! Three? Four.",
		"Line one.\r\nLine two.\rLine three.\n\nLine four without stop",
		"  Leading and trailing space.   Middle gap.  ",
		longCourseText(3000),
		"Ünïcödé sentence é. Ça va? Oui!",
	}
	for _, text := range texts {
		for _, size := range []int{1, 10, 50, 500, 10000} {
			got := strings.Join(Split(text, size), " ")
			if want := Normalize(text); got != want {
				t.Fatalf("reconstruct size=%d: want=%q got=%q", size, want, got)
			}
		}
	}
}

func TestSplitRespectsTargetSize(t *testing.T) {
	text := longCourseText(5000)
	for _, size := range []int{80, 200, 500} {
		for i, c := range Split(text, size) {
			n := utf8.RuneCountInString(c)
			if n > size && len(sentences(c)) > 1 {
				t.Fatalf("size=%d chunk %d: %d runes spanning several sentences", size, i, n)
			}
		}
	}
}

func TestSplitKeepsOversizedSentenceWhole(t *testing.T) {
	long := strings.Repeat("word ", 60) + "end."
	text := "Short one. " + long + " Short two."

	chunks := Split(text, 50)
	want := []string{"Short one.", strings.TrimSpace(long), "Short two."}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("chunks: want=%q got=%q", want, chunks)
	}
}

func TestSplitPacksGreedily(t *testing.T) {
	// "Aaaa. Bbbb." is 11 runes; adding " Cccc." makes 17.
	chunks := Split("Aaaa. Bbbb. Cccc.", 12)
	want := []string{"Aaaa. Bbbb.", "Cccc."}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("chunks: want=%q got=%q", want, chunks)
	}
}

func TestSplitBlankInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\r\n\t"} {
		if got := Split(text, 500); len(got) != 0 {
			t.Fatalf("Split(%q): want empty got=%q", text, got)
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := longCourseText(4000)
	a := Split(text, 300)
	b := Split(text, 300)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Split is not deterministic")
	}
}

func TestSplitCourseOf1200CharsYieldsSeveralChunks(t *testing.T) {
	text := longCourseText(1200)
	if n := len(Split(text, 500)); n < 2 {
		t.Fatalf("chunks: want>=2 got=%d", n)
	}
}

func TestSentencesDoNotBreakOnInnerPunctuation(t *testing.T) {
	got := sentences("Version 1.2 shipped. It works.")
	want := []string{"Version 1.2 shipped.", "It works."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sentences: want=%q got=%q", want, got)
	}
}
