package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// IDX file magic numbers, per the original MNIST distribution.
const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// Normalization constants for MNIST pixel intensities.
const (
	pixelMean   = 0.1307
	pixelStddev = 0.3081
)

// Default file names inside the data directory. A ".gz" suffix on any of
// them is handled transparently.
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	TestImagesFile  = "t10k-images-idx3-ubyte"
	TestLabelsFile  = "t10k-labels-idx1-ubyte"
)

// LoadTraining reads the MNIST training split from dir.
func LoadTraining(dir string) (*Dataset, error) {
	return loadPair(dir, TrainImagesFile, TrainLabelsFile)
}

// LoadTest reads the MNIST test split from dir.
func LoadTest(dir string) (*Dataset, error) {
	return loadPair(dir, TestImagesFile, TestLabelsFile)
}

func loadPair(dir string, imagesFile string, labelsFile string) (*Dataset, error) {
	images, err := readImagesFile(filepath.Join(dir, imagesFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", imagesFile, err)
	}

	labels, err := readLabelsFile(filepath.Join(dir, labelsFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", labelsFile, err)
	}

	dataset := &Dataset{Images: images, Labels: labels}
	if err := dataset.validate(); err != nil {
		return nil, err
	}

	return dataset, nil
}

func readImagesFile(path string) ([][]float64, error) {
	r, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return ReadIDXImages(r)
}

func readLabelsFile(path string) ([]int, error) {
	r, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return ReadIDXLabels(r)
}

// openMaybeGzip opens path, or path+".gz" if the plain file is missing.
func openMaybeGzip(path string) (io.Reader, func() error, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = path + ".gz"
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	if !strings.HasSuffix(path, ".gz") {
		return file, file.Close, nil
	}

	gz, err := gzip.NewReader(file)
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		gz.Close()
		return file.Close()
	}
	return gz, closeFn, nil
}

// ReadIDXImages parses an idx3-ubyte image stream into normalized,
// flattened float vectors.
func ReadIDXImages(r io.Reader) ([][]float64, error) {
	var header struct {
		Magic uint32
		Count uint32
		Rows  uint32
		Cols  uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("reading image header: %w", err)
	}
	if header.Magic != imageMagic {
		return nil, fmt.Errorf("bad image magic: 0x%08x", header.Magic)
	}

	pixelsPerImage := int(header.Rows * header.Cols)
	raw := make([]byte, pixelsPerImage)
	images := make([][]float64, header.Count)
	for i := range images {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("reading image %d: %w", i, err)
		}
		image := make([]float64, pixelsPerImage)
		for j, px := range raw {
			image[j] = (float64(px)/255.0 - pixelMean) / pixelStddev
		}
		images[i] = image
	}

	return images, nil
}

// ReadIDXLabels parses an idx1-ubyte label stream.
func ReadIDXLabels(r io.Reader) ([]int, error) {
	var header struct {
		Magic uint32
		Count uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("reading label header: %w", err)
	}
	if header.Magic != labelMagic {
		return nil, fmt.Errorf("bad label magic: 0x%08x", header.Magic)
	}

	raw := make([]byte, header.Count)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}

	labels := make([]int, header.Count)
	for i, b := range raw {
		labels[i] = int(b)
	}

	return labels, nil
}
