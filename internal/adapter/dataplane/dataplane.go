// Package dataplane carries the gRPC protocol between the management
// plane and the enforcement data plane: boundary mirroring and remote
// enforcement. Both halves share a JSON codec and a hand-rolled service
// descriptor, so the wire format is the domain types themselves.
package dataplane

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"

	"github.com/Intent-Gate/Intentgate/internal/domain/boundary"
)

// Codec is the registered content-subtype for all data-plane RPCs.
const Codec = "intentgate-json"

const (
	serviceName   = "intentgate.v1.DataPlane"
	methodEnforce = "/" + serviceName + "/Enforce"
	methodInstall = "/" + serviceName + "/InstallBoundary"
	methodRemove  = "/" + serviceName + "/RemoveBoundary"
)

type jsonCodec struct{}

func (jsonCodec) Name() string { return Codec }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type installRequest struct {
	Boundary *boundary.Boundary   `json:"boundary"`
	Anchors  *boundary.RuleVector `json:"anchors"`
}

type removeRequest struct {
	TenantID   string `json:"tenant_id"`
	BoundaryID string `json:"boundary_id"`
}

type ack struct {
	OK bool `json:"ok"`
}
