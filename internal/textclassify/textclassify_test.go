package textclassify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_EmptyIsTextual(t *testing.T) {
	assert.False(t, Classify(nil))
	assert.False(t, Classify([]byte{}))
}

func TestClassify_NullByteIsBinary(t *testing.T) {
	content := []byte("hello\x00world")
	assert.True(t, Classify(content))
}

func TestClassify_PlainTextIsTextual(t *testing.T) {
	content := []byte("package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")
	assert.False(t, Classify(content))
}

func TestClassify_HighControlRatioIsBinary(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 1000; i++ {
		buf.WriteByte(0x01)
	}
	assert.True(t, Classify(buf.Bytes()))
}

func TestClassify_LowControlRatioStaysTextual(t *testing.T) {
	content := []byte(strings.Repeat("a", 990) + strings.Repeat("\x01", 5))
	assert.False(t, Classify(content))
}

func TestClassify_TabsNewlinesCarriageReturnsDoNotCount(t *testing.T) {
	content := []byte(strings.Repeat("a\t\n\r", 500))
	assert.False(t, Classify(content))
}

func TestClassify_FormFeedAndDELDoNotCount(t *testing.T) {
	// 0x0B (VT), 0x0C (FF), and 0x7F (DEL) sit outside the problematic
	// ranges; a buffer full of them is still text.
	content := []byte(strings.Repeat("a", 500))
	assert.False(t, Classify(content))
}

func TestClassify_OnlyInspectsLeadingSample(t *testing.T) {
	// Binary marker placed well past the 8 KiB sample window; classification
	// must stay textual because only the head is inspected.
	content := append([]byte(strings.Repeat("a", sampleSize+1024)), 0x00)
	assert.False(t, Classify(content))
}

func TestIsTextual_IsComplementOfClassify(t *testing.T) {
	assert.True(t, IsTextual([]byte("text")))
	assert.False(t, IsTextual([]byte("bin\x00ary")))
}
