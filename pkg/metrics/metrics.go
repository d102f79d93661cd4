package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供网关与客户端引擎注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		TurnDuration, TurnTotal, FrameTotal,
		AnswerBytes, StreamActive,
		QuotaRejectedTotal, ChatRequestDuration,
	)
}

// TurnDuration 单轮对话耗时（秒，从发起到终态）
var TurnDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "scholar_turn_duration_seconds",
		Help:    "单轮对话耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"mode"},
)

// TurnTotal 对话轮次总数（按终态）
var TurnTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scholar_turn_total",
		Help: "对话轮次总数（按终态）",
	},
	[]string{"outcome"}, // completed | cancelled | errored
)

// FrameTotal 解析出的事件帧总数（按类型）
var FrameTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scholar_frame_total",
		Help: "事件帧总数（按类型）",
	},
	[]string{"type"},
)

// AnswerBytes 累计回答字节数
var AnswerBytes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "scholar_answer_bytes_total",
		Help: "累计回答字节数",
	},
)

// StreamActive 当前活跃的事件流数量
var StreamActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "scholar_stream_active",
		Help: "当前活跃的事件流数量",
	},
)

// QuotaRejectedTotal 因免费额度/余额被拒绝的请求数
var QuotaRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scholar_quota_rejected_total",
		Help: "因额度被拒绝的请求数",
	},
	[]string{"reason"}, // free_quota_exceeded | insufficient_balance
)

// ChatRequestDuration 网关 chat 接口耗时（秒）
var ChatRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "scholar_chat_request_duration_seconds",
		Help:    "网关 chat 接口耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"mode", "status"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
