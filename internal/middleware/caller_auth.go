package middleware

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/pkg/response"
)

// Signature headers.
const (
	HeaderAddress   = "X-Sale-Address"
	HeaderTimestamp = "X-Sale-Timestamp"
	HeaderSignature = "X-Sale-Signature"
)

// DefaultMaxClockSkew bounds how far a signed timestamp may drift from now.
const DefaultMaxClockSkew = 5 * time.Minute

// CallerAuthConfig configures signature authentication.
type CallerAuthConfig struct {
	MaxClockSkew time.Duration
	// RPC makes failures render as JSON-RPC errors instead of REST envelopes.
	RPC bool
	Now func() time.Time
}

func (c CallerAuthConfig) withDefaults() CallerAuthConfig {
	if c.MaxClockSkew <= 0 {
		c.MaxClockSkew = DefaultMaxClockSkew
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CallerAuth returns a middleware that requires an EIP-191 personal
// signature over the request and stores the recovered address as caller.
func CallerAuth(cfg CallerAuthConfig) func(http.Handler) http.Handler {
	return callerAuth(cfg.withDefaults(), true)
}

// OptionalCallerAuth authenticates signed requests and lets unsigned ones
// through without a caller. A request carrying a bad signature is rejected.
func OptionalCallerAuth(cfg CallerAuthConfig) func(http.Handler) http.Handler {
	return callerAuth(cfg.withDefaults(), false)
}

func callerAuth(cfg CallerAuthConfig, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(HeaderAddress) == "" && r.Header.Get(HeaderSignature) == "" {
				if required {
					cfg.fail(w, "missing request signature")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				cfg.fail(w, "failed to read request")
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller, err := verifyRequest(r, body, cfg)
			if err != nil {
				cfg.fail(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func (c CallerAuthConfig) fail(w http.ResponseWriter, msg string) {
	if c.RPC {
		writeRPCError(w, rpcUnauthorized, "Unauthorized: "+msg)
		return
	}
	response.Error(w, apierrors.ErrUnauthorized.WithMessage(msg))
}

func verifyRequest(r *http.Request, body []byte, cfg CallerAuthConfig) (common.Address, error) {
	claimed := r.Header.Get(HeaderAddress)
	if !common.IsHexAddress(claimed) {
		return common.Address{}, fmt.Errorf("invalid %s header", HeaderAddress)
	}
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid %s header", HeaderTimestamp)
	}
	skew := cfg.Now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > cfg.MaxClockSkew {
		return common.Address{}, fmt.Errorf("request timestamp outside allowed skew")
	}
	sig, err := hexutil.Decode(r.Header.Get(HeaderSignature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid %s header", HeaderSignature)
	}

	// Wallets produce V in {27, 28}.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	hash := accounts.TextHash(SigningMessage(r.Method, r.URL.Path, ts, body))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature")
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(claimed) {
		return common.Address{}, fmt.Errorf("signature does not match %s", HeaderAddress)
	}
	return recovered, nil
}

// SigningMessage is the text a caller signs for a request.
func SigningMessage(method, path string, ts int64, body []byte) []byte {
	return []byte(fmt.Sprintf("%s\n%s\n%d\n%s", method, path, ts, crypto.Keccak256Hash(body).Hex()))
}

// SignRequest sets the signature headers on r for the given body.
func SignRequest(r *http.Request, key *ecdsa.PrivateKey, ts time.Time, body []byte) error {
	unix := ts.Unix()
	sig, err := crypto.Sign(accounts.TextHash(SigningMessage(r.Method, r.URL.Path, unix, body)), key)
	if err != nil {
		return err
	}
	sig[crypto.RecoveryIDOffset] += 27

	r.Header.Set(HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(unix, 10))
	r.Header.Set(HeaderSignature, hexutil.Encode(sig))
	return nil
}
