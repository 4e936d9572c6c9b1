package ledger_test

//go:generate mockgen -source=ledger.go -destination=mocks/ledger_mock.go -package=mocks Client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"zkbadge/internal/auth/zklogin"
	"zkbadge/internal/ledger"
	"zkbadge/internal/ledger/mocks"
	"zkbadge/internal/platform/metrics"
	"zkbadge/pkg/domain"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/platform/circuit"
)

type ErrorsSuite struct {
	suite.Suite
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsSuite))
}

func (s *ErrorsSuite) TestRetryability() {
	s.True(ledger.IsRetryable(ledger.NewError(ledger.CategoryUnavailable, "op", "down", nil)))
	s.True(ledger.IsRetryable(ledger.NewError(ledger.CategoryTimeout, "op", "slow", nil)))
	s.True(ledger.IsRetryable(fmt.Errorf("wrapped: %w", ledger.NewError(ledger.CategoryRateLimited, "op", "slow down", nil))))
	s.True(ledger.IsRetryable(context.DeadlineExceeded))

	s.False(ledger.IsRetryable(ledger.NewError(ledger.CategoryRejected, "op", "abort", nil)))
	s.False(ledger.IsRetryable(ledger.NewError(ledger.CategoryUnauthorized, "op", "no cap", nil)))
	s.False(ledger.IsRetryable(ledger.NewError(ledger.CategoryMalformed, "op", "bad", nil)))
	s.False(ledger.IsRetryable(context.Canceled))
	s.False(ledger.IsRetryable(errors.New("boom")))
}

func (s *ErrorsSuite) TestToDomain() {
	cases := map[ledger.Category]dErrors.Code{
		ledger.CategoryUnavailable:     dErrors.CodeLedgerUnavailable,
		ledger.CategoryTimeout:         dErrors.CodeLedgerUnavailable,
		ledger.CategoryRejected:        dErrors.CodeLedgerRejected,
		ledger.CategoryUnauthorized:    dErrors.CodeUnauthorized,
		ledger.CategoryInsufficientGas: dErrors.CodeInsufficientGas,
		ledger.CategoryNotFound:        dErrors.CodeNotFound,
	}
	for category, code := range cases {
		s.Run(string(category), func() {
			err := ledger.ToDomain(ledger.NewError(category, "op", "msg", nil), "failed")
			s.True(dErrors.HasCode(err, code))
		})
	}
	s.NoError(ledger.ToDomain(nil, "unused"))
}

func (s *ErrorsSuite) TestSigningBytesBindFields() {
	key, err := zklogin.GenerateEphemeralKey(nil)
	s.Require().NoError(err)
	req := ledger.RegisterMember{Sender: "0xabc", EmailDomain: "@university.edu", Organization: "University", MaxEpoch: 7}
	req.Sign("0xregistry", key)

	s.True(req.VerifySignature("0xregistry"))
	s.False(req.VerifySignature("0xother-registry"))

	tampered := req
	tampered.EmailDomain = "@evil.edu"
	s.False(tampered.VerifySignature("0xregistry"))
}

type ResilientSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	inner    *mocks.MockClient
	spans    *tracetest.SpanRecorder
	now      time.Time
	breaker  *circuit.Breaker
	metrics  *metrics.Metrics
	client   *ledger.Resilient
	addr     domain.Address
	outage   error
	rejected error
}

func TestResilientSuite(t *testing.T) {
	suite.Run(t, new(ResilientSuite))
}

func (s *ResilientSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.inner = mocks.NewMockClient(s.ctrl)
	s.spans = tracetest.NewSpanRecorder()
	s.now = time.Now()
	s.breaker = circuit.New("ledger",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.client = ledger.NewResilient(s.inner,
		ledger.WithBreaker(s.breaker),
		ledger.WithMetrics(s.metrics),
		ledger.WithTimeout(50*time.Millisecond),
		ledger.WithTracer(trace.NewTracerProvider(trace.WithSpanProcessor(s.spans)).Tracer("test")),
	)
	s.addr = domain.Address("0x01")
	s.outage = ledger.NewError(ledger.CategoryUnavailable, "verify_badge", "connection refused", nil)
	s.rejected = ledger.NewError(ledger.CategoryRejected, "verify_badge", "abort", nil)
}

func (s *ResilientSuite) TestPassesThroughAndTraces() {
	s.inner.EXPECT().VerifyBadge(gomock.Any(), "0xbadge", s.addr).Return(true, nil)

	ok, err := s.client.VerifyBadge(context.Background(), "0xbadge", s.addr)
	s.Require().NoError(err)
	s.True(ok)

	ended := s.spans.Ended()
	s.Require().Len(ended, 1)
	s.Equal("ledger.verify_badge", ended[0].Name())
}

func (s *ResilientSuite) TestBreakerOpensOnRetryableFailures() {
	s.inner.EXPECT().VerifyBadge(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, s.outage).Times(2)

	for i := 0; i < 2; i++ {
		_, err := s.client.VerifyBadge(context.Background(), "0xbadge", s.addr)
		s.ErrorIs(err, s.outage)
	}
	s.True(s.breaker.IsOpen())

	_, err := s.client.VerifyBadge(context.Background(), "0xbadge", s.addr)
	s.ErrorIs(err, ledger.ErrCircuitOpen)
	s.True(ledger.IsRetryable(err))

	s.Run("trial call after cooldown closes the breaker", func() {
		s.now = s.now.Add(2 * time.Minute)
		s.inner.EXPECT().VerifyBadge(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		ok, err := s.client.VerifyBadge(context.Background(), "0xbadge", s.addr)
		s.Require().NoError(err)
		s.True(ok)
		s.False(s.breaker.IsOpen())
	})
}

func (s *ResilientSuite) TestTerminalFailuresDoNotTripBreaker() {
	s.inner.EXPECT().VerifyBadge(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, s.rejected).Times(3)
	for i := 0; i < 3; i++ {
		_, err := s.client.VerifyBadge(context.Background(), "0xbadge", s.addr)
		s.ErrorIs(err, s.rejected)
	}
	s.False(s.breaker.IsOpen())
}

func (s *ResilientSuite) TestDeadlineBecomesRetryableTimeout() {
	s.inner.EXPECT().IsDomainAllowed(gomock.Any(), "@university.edu").DoAndReturn(
		func(ctx context.Context, _ string) (bool, error) {
			<-ctx.Done()
			return false, ctx.Err()
		})

	_, err := s.client.IsDomainAllowed(context.Background(), "@university.edu")
	s.Require().Error(err)
	s.Equal(ledger.CategoryTimeout, ledger.CategoryOf(err))
	s.True(ledger.IsRetryable(err))
}

func (s *ResilientSuite) TestAwaitEffects() {
	s.Run("polls until known", func() {
		gomock.InOrder(
			s.inner.EXPECT().TransactionEffects(gomock.Any(), "0xd").Return(&ledger.Effects{Digest: "0xd", Status: ledger.TxUnknown}, nil),
			s.inner.EXPECT().TransactionEffects(gomock.Any(), "0xd").Return(nil, ledger.NewError(ledger.CategoryNotFound, "transaction_effects", "unknown", nil)),
			s.inner.EXPECT().TransactionEffects(gomock.Any(), "0xd").Return(&ledger.Effects{Digest: "0xd", Status: ledger.TxSuccess}, nil),
		)
		fx, err := ledger.AwaitEffects(context.Background(), s.client, "0xd", time.Millisecond)
		s.Require().NoError(err)
		s.Equal(ledger.TxSuccess, fx.Status)
	})

	s.Run("gives up at the deadline", func() {
		s.inner.EXPECT().TransactionEffects(gomock.Any(), "0xe").Return(&ledger.Effects{Digest: "0xe", Status: ledger.TxUnknown}, nil).AnyTimes()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := ledger.AwaitEffects(ctx, s.client, "0xe", 5*time.Millisecond)
		s.Require().Error(err)
		s.True(ledger.IsRetryable(err))
	})
}
