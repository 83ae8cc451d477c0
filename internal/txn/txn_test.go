package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNEARToYocto(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2.5", "2500000000000000000000000"},
		{"1", "1000000000000000000000000"},
		{"0.000001", "1000000000000000000"},
		{"0", "0"},
		{".5", "500000000000000000000000"},
		{"100.25", "100250000000000000000000000"},
	}
	for _, tc := range cases {
		got, err := NEARToYocto(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNEARToYocto_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "1.2.3", "1,5",
		"0.0000000000000000000000001"} {
		_, err := NEARToYocto(in)
		assert.Error(t, err, in)
	}
}

func TestYoctoToNEAR_RoundTrip(t *testing.T) {
	for _, amount := range []string{"2.5", "1", "0.000001", "100.25"} {
		yocto, err := NEARToYocto(amount)
		require.NoError(t, err)
		back, err := YoctoToNEAR(yocto)
		require.NoError(t, err)
		assert.Equal(t, amount, back)
	}
}

func TestParseLaunchURL(t *testing.T) {
	p, err := ParseLaunchURL("http://localhost:3000/?sessionId=sess-1&amount=2.5&receiver=alice.test&purpose=coffee")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.True(t, p.SeedsTransaction())

	req, err := p.Request()
	require.NoError(t, err)
	assert.Equal(t, "2500000000000000000000000", req.Data.Amount)
	assert.Equal(t, "alice.test", req.Data.Receiver)
	require.NotNil(t, req.Data.Metadata)
	assert.Equal(t, "2.5", req.Data.Metadata.OriginalAmount)
	assert.Equal(t, "sess-1", req.SessionID)
	assert.NotEmpty(t, req.TransactionID)
}

func TestParseLaunchURL_LowercaseSpelling(t *testing.T) {
	p, err := ParseLaunchURL("http://localhost:3000/?sessionid=sess-2")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", p.SessionID)
	assert.False(t, p.SeedsTransaction())

	_, err = p.Request()
	assert.Error(t, err)
}

func TestParseLaunchURL_MissingSession(t *testing.T) {
	_, err := ParseLaunchURL("http://localhost:3000/?amount=2.5")
	assert.Error(t, err)
}

func TestDataValidate(t *testing.T) {
	transfer := Data{Amount: "1000", Receiver: "alice.test"}
	require.NoError(t, transfer.Validate())
	assert.True(t, transfer.IsTransfer())
	assert.Equal(t, "alice.test", transfer.TargetAccount())

	call := Data{ReceiverID: "contract.test", MethodName: "ft_transfer"}
	require.NoError(t, call.Validate())
	assert.False(t, call.IsTransfer())
	assert.Equal(t, "contract.test", call.TargetAccount())

	assert.Error(t, Data{}.Validate())
	assert.Error(t, Data{Amount: "xyz", Receiver: "a.test"}.Validate())
}

func TestNewRequestGeneratesID(t *testing.T) {
	r := NewRequest("sess-1", Data{Amount: "1", Receiver: "a.test"})
	assert.Contains(t, r.TransactionID, "tx-")
	assert.Equal(t, StatusReceived, r.Status)
}
