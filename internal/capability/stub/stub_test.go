package stub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/capability"
	"kycgate/internal/capability/contract"
)

func descriptor(name string) capability.EvidenceInput {
	return capability.EvidenceInput{Descriptor: capability.EvidenceDescriptor{ID: "EVD-1", FileName: name}}
}

func TestStubContract(t *testing.T) {
	suite := contract.Suite{
		Set: NewSet(),
		Classifications: []contract.ClassifierCase{
			{Name: "passport", Input: descriptor("my_passport.pdf"), Expected: capability.DocPassport},
			{Name: "license", Input: descriptor("Drivers-License.png"), Expected: capability.DocDriversLicense},
			{Name: "utility", Input: descriptor("utility_may.pdf"), Expected: capability.DocUtilityBill},
			{Name: "unknown", Input: descriptor("selfie.jpg"), Expected: capability.DocUnknown},
		},
		Document: capability.EvidenceInput{
			Descriptor: capability.EvidenceDescriptor{ID: "EVD-1", FileName: "passport.txt"},
			Content:    []byte("full_name: Jane Doe\ndob: 1990-01-10\n"),
		},
		TargetLanguage: "en",
		Fields:         []string{"full_name", "dob", "address.city"},
		Case:           capability.CaseContext{CaseID: "INT-1", CategoryID: "cip"},
	}
	suite.Run(t)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	(&contract.ErrorContractTest{
		Name: "cancelled context is a retryable timeout",
		Call: func(context.Context) error {
			_, err := Reasoner{}.Reason(cancelled, capability.CaseContext{})
			return err
		},
		ExpectedError: capability.ErrorTimeout,
		ExpectedRetry: true,
	}).Run(t)
}

func TestExtractorReadsKeyValueLines(t *testing.T) {
	fields, err := Extractor{}.Extract(context.Background(),
		"Full_Name: Jane Doe\ndob: 1990-01-10\nnoise line\ndob: 2000-01-01",
		[]string{"full_name", "dob", "citizenship"})
	require.NoError(t, err)
	require.Len(t, fields, 3)
	require.NotNil(t, fields["full_name"].Value)
	assert.Equal(t, "Jane Doe", *fields["full_name"].Value)
	assert.Equal(t, "1990-01-10", *fields["dob"].Value)
	assert.Nil(t, fields["citizenship"].Value)
	assert.Zero(t, fields["citizenship"].Confidence)
}

func TestOCRLanguageHeader(t *testing.T) {
	res, err := OCR{Language: "en"}.Run(context.Background(), capability.EvidenceInput{
		Content: []byte("lang: hi\nनाम: राम\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Language)
	assert.Equal(t, "नाम: राम\n", res.RawText)

	binary, err := OCR{}.Run(context.Background(), capability.EvidenceInput{
		Descriptor: capability.EvidenceDescriptor{FileName: "scan.png"},
		Content:    []byte{0xff, 0xd8, 0xff},
	})
	require.NoError(t, err)
	assert.Equal(t, "en", binary.Language)
}
