package onnx

import "testing"

func TestTokenize_ShapeAndSpecialTokens(t *testing.T) {
	tok := &WordTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tok.Tokenize("went hiking in the hills", 16)

	if len(inputIDs) != 16 || len(attentionMask) != 16 || len(tokenTypeIDs) != 16 {
		t.Fatalf("lengths = %d/%d/%d, want 16", len(inputIDs), len(attentionMask), len(tokenTypeIDs))
	}
	if inputIDs[0] != 101 {
		t.Errorf("first token = %d, want [CLS] 101", inputIDs[0])
	}
	// 5 words follow CLS, then SEP.
	if inputIDs[6] != 102 {
		t.Errorf("token after words = %d, want [SEP] 102", inputIDs[6])
	}
	for i := 0; i <= 6; i++ {
		if attentionMask[i] != 1 {
			t.Errorf("attention[%d] = %d, want 1", i, attentionMask[i])
		}
	}
	if attentionMask[7] != 0 {
		t.Errorf("padding must be masked out")
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	tok := &WordTokenizer{}
	a, _, _ := tok.Tokenize("dinner with friends", 8)
	b, _, _ := tok.Tokenize("dinner with friends", 8)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("token ids differ at %d", i)
		}
	}
}

func TestTokenize_TruncatesLongInput(t *testing.T) {
	tok := &WordTokenizer{}
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	inputIDs, _, _ := tok.Tokenize(long, 8)
	if len(inputIDs) != 8 {
		t.Fatalf("len = %d, want 8", len(inputIDs))
	}
}
