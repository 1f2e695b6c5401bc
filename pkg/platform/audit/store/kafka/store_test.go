package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "certregistry/pkg/platform/audit"
)

type record struct {
	topic string
	key   []byte
	value []byte
}

type fakeProducer struct {
	records []record
	err     error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.records = append(p.records, record{topic: topic, key: key, value: value})
	return nil
}

func TestAppendPublishesKeyedBySubject(t *testing.T) {
	producer := &fakeProducer{}
	store := New(producer, "certregistry.certificates")

	err := store.Append(context.Background(), audit.Event{
		Subject:        "0xabc",
		Action:         string(audit.EventCertificateCreated),
		FirstName:      "John",
		ExpirationDate: 1765340800,
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "certregistry.certificates", rec.topic)
	assert.Equal(t, "0xabc", string(rec.key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.value, &body))
	assert.Equal(t, "compliance", body["category"])
	assert.Equal(t, "John", body["first_name"])
	assert.EqualValues(t, 1765340800, body["expiration_date"])
	assert.NotEmpty(t, body["id"])
}

func TestAppendSurfacesProducerFailure(t *testing.T) {
	store := New(&fakeProducer{err: errors.New("broker down")}, "t")

	err := store.Append(context.Background(), audit.Event{Subject: "0x1", Action: "certificate_suspended"})
	assert.ErrorContains(t, err, "broker down")
}
