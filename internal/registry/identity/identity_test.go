package identity

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certregistry/pkg/domain-errors"
)

var johnDoe = Fields{
	FirstName:        "John",
	LastName:         "Doe",
	OrganizationName: "CertOrg",
	IssueDate:        1699788800,
	ExpirationDate:   1765340800,
}

func TestDeriveKnownVectors(t *testing.T) {
	cases := []struct {
		name   string
		fields Fields
		want   string
	}{
		{
			name:   "john doe",
			fields: johnDoe,
			want:   "0x2c3045255503e0fb30beb7ae8b3928c7d4913ce7d83531e6e4b8305305cee624",
		},
		{
			name: "alice smith",
			fields: Fields{
				FirstName:        "Alice",
				LastName:         "Smith",
				OrganizationName: "OrgXYZ",
				IssueDate:        1699788800,
				ExpirationDate:   1765340800,
			},
			want: "0x31fe144c2803ef17eac03c8a61d6a6688bbe9da7ef70d2a4070f11ccfb1953e6",
		},
		{
			name:   "all zero values",
			fields: Fields{},
			want:   "0x9c766f3127343660706a23f33f90dbe2795e5edaa5a15feee8d75ff5021b663a",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Derive(tc.fields).String())
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	want := "" +
		"00000000000000000000000000000000000000000000000000000000000000a0" +
		"00000000000000000000000000000000000000000000000000000000000000e0" +
		"0000000000000000000000000000000000000000000000000000000000000120" +
		"000000000000000000000000000000000000000000000000000000006550b800" +
		"000000000000000000000000000000000000000000000000000000006938f680" +
		"0000000000000000000000000000000000000000000000000000000000000004" +
		"4a6f686e00000000000000000000000000000000000000000000000000000000" +
		"0000000000000000000000000000000000000000000000000000000000000003" +
		"446f650000000000000000000000000000000000000000000000000000000000" +
		"0000000000000000000000000000000000000000000000000000000000000007" +
		"436572744f726700000000000000000000000000000000000000000000000000"

	assert.Equal(t, want, hex.EncodeToString(Encode(johnDoe)))
}

func TestDeriveIsDeterministic(t *testing.T) {
	assert.Equal(t, Derive(johnDoe), Derive(johnDoe))
}

func TestDeriveFieldBoundaries(t *testing.T) {
	shifted := Fields{FirstName: "Jo", LastName: "hnDoe", OrganizationName: "X", IssueDate: 1, ExpirationDate: 2}
	plain := Fields{FirstName: "John", LastName: "Doe", OrganizationName: "X", IssueDate: 1, ExpirationDate: 2}

	assert.Equal(t, "0xc447c806856d2bce56711e2c006ff0be43dbf58c08eec9debbfba118db60e140", Derive(shifted).String())
	assert.Equal(t, "0x5902aa1b282f7bbac49e9d2943f81db0c56a14dc5d51ac2c7b517c8259b0b622", Derive(plain).String())
	assert.NotEqual(t, Derive(shifted), Derive(plain))
}

func TestDeriveSensitivity(t *testing.T) {
	base := Derive(johnDoe)

	mutations := map[string]func(f *Fields){
		"first name":      func(f *Fields) { f.FirstName = "john" },
		"last name":       func(f *Fields) { f.LastName = "Doe " },
		"organization":    func(f *Fields) { f.OrganizationName = "CertOrg2" },
		"issue date":      func(f *Fields) { f.IssueDate++ },
		"expiration date": func(f *Fields) { f.ExpirationDate-- },
		"swapped dates": func(f *Fields) {
			f.IssueDate, f.ExpirationDate = f.ExpirationDate, f.IssueDate
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			f := johnDoe
			mutate(&f)
			assert.NotEqual(t, base, Derive(f))
		})
	}
}

func TestDeriveNegativeTimestamp(t *testing.T) {
	f := johnDoe
	f.IssueDate = -1

	assert.NotPanics(t, func() { _ = Derive(f) })
	assert.NotEqual(t, Derive(johnDoe), Derive(f))
}

func TestParse(t *testing.T) {
	want := Derive(johnDoe)

	t.Run("with prefix", func(t *testing.T) {
		got, err := Parse(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("without prefix and upper case", func(t *testing.T) {
		got, err := Parse("2C3045255503E0FB30BEB7AE8B3928C7D4913CE7D83531E6E4B8305305CEE624")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	for name, input := range map[string]string{
		"empty":     "",
		"short":     "0x2c30",
		"not hex":   "0x" + "zz3045255503e0fb30beb7ae8b3928c7d4913ce7d83531e6e4b8305305cee624",
		"too long":  want.String() + "00",
		"odd digit": want.String()[:65],
	} {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestIdentityJSON(t *testing.T) {
	id := Derive(johnDoe)

	raw, err := json.Marshal(struct {
		ID Identity `json:"identity"`
	}{ID: id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"identity":"0x2c3045255503e0fb30beb7ae8b3928c7d4913ce7d83531e6e4b8305305cee624"}`, string(raw))

	var decoded struct {
		ID Identity `json:"identity"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, id, decoded.ID)
}
