/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package transfer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/json"
	"io"
	"math/big"
	"time"

	"github.com/gravitational/trace"
	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

// maxQUICFrame bounds one length-prefixed frame read off a stream;
// chunk payloads ride inside frameEnvelope.Payload so this has to
// cover a full chunk plus its JSON header.
const maxQUICFrame = 64 << 20

// frameEnvelope is the message carried over one QUIC stream frame.
// Kind selects which of the transfer protocol's messages Header
// decodes as; Payload only carries bytes for "chunk_data".
type frameEnvelope struct {
	Kind    string          `json:"kind"`
	Header  json.RawMessage `json:"header,omitempty"`
	Payload []byte          `json:"payload,omitempty"`
}

// QUICConfig configures a QUICServer.
type QUICConfig struct {
	// Addr is the UDP address to listen on, e.g. "127.0.0.1:4433".
	Addr string
	// TLSConfig is used as-is if set; otherwise a self-signed
	// certificate is generated, since QUIC requires TLS 1.3 and this
	// daemon only serves loopback clients that already trust it via
	// the IPC control channel.
	TLSConfig *tls.Config
	Receiver  *Receiver
	Log       *logrus.Entry
}

func (c *QUICConfig) CheckAndSetDefaults() error {
	if c.Addr == "" {
		return trace.BadParameter("transfer: QUICConfig.Addr is required")
	}
	if c.Receiver == nil {
		return trace.BadParameter("transfer: QUICConfig.Receiver is required")
	}
	if c.Log == nil {
		c.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if c.TLSConfig == nil {
		cert, err := generateSelfSignedCert()
		if err != nil {
			return trace.Wrap(err, "generating transfer QUIC certificate")
		}
		c.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"pulsar-transfer"},
		}
	}
	return nil
}

// QUICServer accepts reliable-datagram chunk transmission for C9
// alongside the IPC unix-socket path, driving the same Receiver state
// machine spec.md describes transport-agnostically.
type QUICServer struct {
	cfg QUICConfig
	lis *quic.Listener
}

// NewQUICServer binds a UDP listener and wraps it for QUIC.
func NewQUICServer(cfg QUICConfig) (*QUICServer, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	lis, err := quic.ListenAddr(cfg.Addr, cfg.TLSConfig, nil)
	if err != nil {
		return nil, trace.Wrap(err, "listening for quic on %s", cfg.Addr)
	}
	return &QUICServer{cfg: cfg, lis: lis}, nil
}

// Addr returns the bound UDP address.
func (s *QUICServer) Addr() string {
	return s.lis.Addr().String()
}

// Serve accepts connections until ctx is cancelled or Stop is called.
func (s *QUICServer) Serve(ctx context.Context) error {
	for {
		conn, err := s.lis.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return trace.Wrap(err)
		}
		go s.handleConnection(ctx, conn)
	}
}

// Stop closes the listener, unblocking Serve.
func (s *QUICServer) Stop() error {
	return trace.Wrap(s.lis.Close())
}

func (s *QUICServer) handleConnection(ctx context.Context, conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.handleStream(stream)
	}
}

func (s *QUICServer) handleStream(stream quic.Stream) {
	defer stream.Close()

	for {
		raw, err := readQUICFrame(stream, maxQUICFrame)
		if err != nil {
			if err != io.EOF {
				s.cfg.Log.WithError(err).Debug("Transfer stream closed.")
			}
			return
		}
		var env frameEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.cfg.Log.WithError(err).Warn("Discarding malformed transfer frame.")
			continue
		}
		resp := s.dispatch(env)
		respRaw, err := json.Marshal(resp)
		if err != nil {
			s.cfg.Log.WithError(err).Error("Failed to marshal transfer response.")
			return
		}
		if err := writeQUICFrame(stream, respRaw); err != nil {
			return
		}
	}
}

func (s *QUICServer) dispatch(env frameEnvelope) frameEnvelope {
	switch env.Kind {
	case "transfer_start":
		var msg TransferStart
		if err := json.Unmarshal(env.Header, &msg); err != nil {
			return errEnvelope(ErrNetworkError, err.Error())
		}
		ack, err := s.cfg.Receiver.HandleStart(msg)
		if err != nil {
			return errEnvelope(ErrNetworkError, err.Error())
		}
		return resultEnvelope("transfer_ack", ack)

	case "chunk_data":
		var hdr ChunkHeader
		if err := json.Unmarshal(env.Header, &hdr); err != nil {
			return errEnvelope(ErrInvalidChunkSize, err.Error())
		}
		ack, chunkErr := s.cfg.Receiver.HandleChunk(hdr, env.Payload)
		if chunkErr != nil {
			return resultEnvelope("error", chunkErr)
		}
		return resultEnvelope("chunk_ack", ack)

	case "transfer_complete":
		var msg TransferComplete
		if err := json.Unmarshal(env.Header, &msg); err != nil {
			return errEnvelope(ErrNetworkError, err.Error())
		}
		success, transferErr := s.cfg.Receiver.HandleComplete(msg)
		if transferErr != nil {
			return resultEnvelope("error", transferErr)
		}
		return resultEnvelope("transfer_success", success)

	case "resume_request":
		var msg ResumeRequest
		if err := json.Unmarshal(env.Header, &msg); err != nil {
			return errEnvelope(ErrNetworkError, err.Error())
		}
		info, err := s.cfg.Receiver.HandleResume(msg)
		if err != nil {
			return errEnvelope(ErrTransferNotFound, err.Error())
		}
		return resultEnvelope("resume_info", info)

	case "transfer_abort":
		var msg TransferAbort
		if err := json.Unmarshal(env.Header, &msg); err != nil {
			return errEnvelope(ErrNetworkError, err.Error())
		}
		if err := s.cfg.Receiver.HandleAbort(msg); err != nil {
			return errEnvelope(ErrTransferNotFound, err.Error())
		}
		return frameEnvelope{Kind: "ok"}

	default:
		return errEnvelope(ErrNetworkError, "unknown frame kind "+env.Kind)
	}
}

func resultEnvelope(kind string, v any) frameEnvelope {
	raw, err := json.Marshal(v)
	if err != nil {
		return errEnvelope(ErrNetworkError, err.Error())
	}
	return frameEnvelope{Kind: kind, Header: raw}
}

func errEnvelope(kind ErrorKind, msg string) frameEnvelope {
	raw, _ := json.Marshal(Error{Kind: kind, Message: msg})
	return frameEnvelope{Kind: "error", Header: raw}
}

func readQUICFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxSize {
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return nil, err
		}
		return nil, trace.LimitExceeded("transfer frame of %d bytes exceeds %d byte limit", n, maxSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeQUICFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return trace.Wrap(err)
	}
	_, err := w.Write(payload)
	return trace.Wrap(err)
}

// generateSelfSignedCert produces an ephemeral P-256 certificate for
// the loopback-only QUIC listener.
func generateSelfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, trace.Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, trace.Wrap(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "pulsard-transfer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, trace.Wrap(err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
