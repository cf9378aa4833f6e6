package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psimaker/internal/blob"
	"psimaker/internal/pipeline"
	"psimaker/internal/rows"
	"psimaker/pkg/interaction"
)

var (
	_ pipeline.Writer = (*BlobWriter)(nil)
	_ pipeline.Writer = (*MemoryWriter)(nil)
)

func sampleRecords() []interaction.InteractionRecord {
	bait := interaction.ParticipantRecord{Line: 2, Fields: map[string]string{
		"Participant name":                  "egfr",
		"Participant ID":                    "P00533",
		"Participant ID database":           "uniprotkb",
		"Participant organism":              "9606",
		"Experimental role":                 "bait",
		"Participant identification method": "western blot",
		"Participant xref":                  "GO:0005515",
		"Participant xref database":         "go",
	}, Features: []interaction.FeatureRecord{{Index: 0, Fields: map[string]string{
		"Feature short label":    "kinase",
		"Feature start location": "712",
		"Feature end location":   "979",
		"Feature xref":           "IPR000719",
		"Feature xref database":  "interpro",
	}}}}
	prey := interaction.ParticipantRecord{Line: 3, Fields: map[string]string{
		"Participant name":        "grb2",
		"Participant ID":          "P62993",
		"Participant ID database": "uniprotkb",
		"Participant organism":    "9606",
		"Experimental role":       "prey",
	}}
	return []interaction.InteractionRecord{
		{
			Number:          "1",
			Type:            interaction.TypePhysicalAssociation,
			DetectionMethod: "anti tag coimmunoprecipitation",
			HostOrganism:    "9606",
			Parameters:      []interaction.Parameter{{Type: "kd", Value: "1.5", Unit: "nM"}},
			Participants:    []interaction.ParticipantRecord{bait, prey},
		},
		{Number: "2", Type: interaction.TypePhysicalAssociation, Participants: []interaction.ParticipantRecord{prey}},
	}
}

func read(t *testing.T, store blob.Store, key string) []byte {
	t.Helper()
	_, body, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return data
}

func TestBlobWriterOneObjectPerBatch(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	w, err := NewBlobWriter(store, BlobOptions{Prefix: "out", Run: "run-1"}, nil)
	require.NoError(t, err)

	recs := sampleRecords()
	require.NoError(t, w.Write(ctx, recs[:1]))
	require.NoError(t, w.Write(ctx, recs[1:]))

	assert.Equal(t, []string{"out/run-1/batch-0001.json", "out/run-1/batch-0002.json"}, w.Keys())
	assert.Equal(t, "out/run-1/", w.Location())

	var got Batch
	require.NoError(t, json.Unmarshal(read(t, store, "out/run-1/batch-0001.json"), &got))
	assert.Equal(t, 1, got.Sequence)
	assert.Equal(t, "run-1", got.Run)
	if diff := cmp.Diff(recs[:1], got.Records); diff != "" {
		t.Fatalf("decoded records (-want +got):\n%s", diff)
	}

	info, err := store.Head(ctx, "out/run-1/batch-0002.json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", info.ContentType)
	assert.Equal(t, "1", info.Metadata["records"])
}

func TestBlobWriterRefusesToOverwriteRun(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	first, err := NewBlobWriter(store, BlobOptions{Run: "r"}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Write(ctx, sampleRecords()))

	second, err := NewBlobWriter(store, BlobOptions{Run: "r"}, nil)
	require.NoError(t, err)
	err = second.Write(ctx, sampleRecords())
	require.ErrorIs(t, err, blob.ErrExists)
	assert.Empty(t, second.Keys())
}

func TestBlobWriterJSONLines(t *testing.T) {
	store := blob.NewMemory()
	w, err := NewBlobWriter(store, BlobOptions{Run: "r", Format: "jsonl"}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), sampleRecords()))

	data := read(t, store, "r/batch-0001.jsonl")
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	var rec interaction.InteractionRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "2", rec.Number)
}

func TestXMLEncoderEntrySet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, XMLEncoder{}.Encode(&buf, Batch{Run: "r", Sequence: 3, Records: sampleRecords()}))
	require.True(t, strings.HasPrefix(buf.String(), "<?xml"))

	var doc xmlEntrySet
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 3, doc.Entry.Source.Batch)
	require.Len(t, doc.Entry.Interactions, 2)

	first := doc.Entry.Interactions[0]
	assert.Equal(t, "anti tag coimmunoprecipitation", first.DetectionMethod)
	require.Len(t, first.Participants, 2)
	bait := first.Participants[0]
	assert.Equal(t, "1-1", bait.ID)
	assert.Equal(t, xmlXref{DB: "uniprotkb", ID: "P00533"}, bait.Identifier)
	assert.Equal(t, "western blot", bait.IdentificationMethod)
	require.Len(t, bait.Features, 1)
	assert.Equal(t, &xmlRange{Start: "712", End: "979"}, bait.Features[0].Range)
	assert.Equal(t, []xmlXref{{DB: "interpro", ID: "IPR000719"}}, bait.Features[0].Xrefs)
	assert.Equal(t, []interaction.Parameter{{Type: "kd", Value: "1.5", Unit: "nM"}}, first.Parameters)
}

func TestXMLEncoderRepeatedNumbers(t *testing.T) {
	recs := sampleRecords()
	recs[1].Number = recs[0].Number
	var buf bytes.Buffer
	require.NoError(t, XMLEncoder{}.Encode(&buf, Batch{Run: "r", Sequence: 1, Records: recs}))

	var doc xmlEntrySet
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Entry.Interactions, 2)
	first, second := doc.Entry.Interactions[0], doc.Entry.Interactions[1]
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "2", second.ID)
	assert.Equal(t, "1", first.ShortLabel)
	assert.Equal(t, "1", second.ShortLabel)
	assert.Equal(t, "1-1", first.Participants[0].ID)
	assert.Equal(t, "2-1", second.Participants[0].ID)
}

type failingStore struct{ blob.Store }

func (failingStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("disk full")
}

func TestBlobWriterPropagatesStoreErrors(t *testing.T) {
	w, err := NewBlobWriter(failingStore{blob.NewMemory()}, BlobOptions{Run: "r"}, nil)
	require.NoError(t, err)
	err = w.Write(context.Background(), sampleRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestNewBlobWriterValidation(t *testing.T) {
	_, err := NewBlobWriter(nil, BlobOptions{Run: "r"}, nil)
	assert.Error(t, err)
	_, err = NewBlobWriter(blob.NewMemory(), BlobOptions{}, nil)
	assert.Error(t, err)
	_, err = NewBlobWriter(blob.NewMemory(), BlobOptions{Run: "r", Format: "psi-tab"}, nil)
	assert.ErrorContains(t, err, "unknown output format")
	assert.Equal(t, []string{"json", "jsonl", "xml"}, Formats())
}

func TestMemoryWriterWithProcessor(t *testing.T) {
	mw := &MemoryWriter{}
	mapping := interaction.MustColumnMapping(map[string]int{
		"Interaction number":      0,
		"Participant name":        1,
		"Participant ID":          2,
		"Participant ID database": 3,
		"Participant organism":    4,
	})
	src := []string{
		"1,A,P1,uniprotkb,9606",
		"1,B,P2,uniprotkb,9606",
		"2,C,P3,uniprotkb,9606",
	}
	table := make([][]string, len(src))
	for i, line := range src {
		table[i] = strings.Split(line, ",")
	}
	p := pipeline.NewProcessor(mw)
	require.NoError(t, p.Process(context.Background(), rows.NewSlice(table), mapping, 0, 1))
	assert.Len(t, mw.Batches(), 2)
	assert.Len(t, mw.Records(), 2)
}
