package mnist

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeImages(t *testing.T, pixels [][]byte, rows, cols uint32) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(imageMagic)))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(len(pixels))))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, rows))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, cols))
	for _, image := range pixels {
		buf.Write(image)
	}
	return buf.Bytes()
}

func encodeLabels(t *testing.T, labels []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(labelMagic)))
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(len(labels))))
	buf.Write(labels)
	return buf.Bytes()
}

func TestReadIDXImages(t *testing.T) {
	raw := encodeImages(t, [][]byte{
		{0, 255, 0, 255},
		{128, 128, 128, 128},
	}, 2, 2)

	images, err := ReadIDXImages(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, images, 2)
	require.Len(t, images[0], 4)

	zero := (0.0/255.0 - pixelMean) / pixelStddev
	full := (255.0/255.0 - pixelMean) / pixelStddev
	assert.InDelta(t, zero, images[0][0], 1e-9)
	assert.InDelta(t, full, images[0][1], 1e-9)
}

func TestReadIDXImagesBadMagic(t *testing.T) {
	raw := encodeLabels(t, []byte{1, 2})
	_, err := ReadIDXImages(bytes.NewReader(raw))
	assert.ErrorContains(t, err, "bad image magic")
}

func TestReadIDXImagesTruncated(t *testing.T) {
	raw := encodeImages(t, [][]byte{{1, 2, 3, 4}}, 2, 2)
	_, err := ReadIDXImages(bytes.NewReader(raw[:len(raw)-2]))
	assert.Error(t, err)
}

func TestReadIDXLabels(t *testing.T) {
	raw := encodeLabels(t, []byte{3, 7, 0})

	labels, err := ReadIDXLabels(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 0}, labels)
}

func TestLoadTrainingGzip(t *testing.T) {
	dir := t.TempDir()

	writeGzip := func(name string, data []byte) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write(data)
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".gz"), buf.Bytes(), 0644))
	}

	writeGzip(TrainImagesFile, encodeImages(t, [][]byte{
		{0, 0, 0, 0},
		{255, 255, 255, 255},
	}, 2, 2))
	writeGzip(TrainLabelsFile, encodeLabels(t, []byte{1, 9}))

	dataset, err := LoadTraining(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, dataset.Len())
	assert.Equal(t, []int{1, 9}, dataset.Labels)
}

func TestLoadTrainingMissingFiles(t *testing.T) {
	_, err := LoadTraining(t.TempDir())
	assert.Error(t, err)
}

func TestDatasetSubsetAndCounts(t *testing.T) {
	dataset := &Dataset{
		Images: [][]float64{{0}, {1}, {2}, {3}},
		Labels: []int{0, 1, 1, 2},
	}

	subset := dataset.Subset([]int{1, 3})
	assert.Equal(t, 2, subset.Len())
	assert.Equal(t, []int{1, 2}, subset.Labels)
	assert.Equal(t, []float64{1}, subset.Images[0])

	counts := dataset.ClassCounts()
	assert.Equal(t, 1, counts[0])
	assert.Equal(t, 2, counts[1])
	assert.Equal(t, 1, counts[2])
}
