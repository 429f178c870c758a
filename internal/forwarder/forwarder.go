package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TransportError 控制端点传输失败
// StatusCode == 0 表示请求未发出（方法不支持或连接失败）
type TransportError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("control endpoint returned %d: %s", e.StatusCode, e.Body)
	}
	return e.Reason
}

// Forwarder 把模型输出中的结构化载荷转发给控制端点
// 不做请求级重试：每个数据批至多转发一次，失败后的重投递
// 由调度器的水位线机制完成（重算出的批与失败批完全一致）
type Forwarder struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewForwarder 创建转发器
func NewForwarder(timeout time.Duration, logger *zap.Logger) *Forwarder {
	client := resty.New().
		SetTimeout(timeout)

	return &Forwarder{
		httpClient: client,
		logger:     logger,
	}
}

// Forward 提取 → 校验 → HTTP 转发
// 只有 POST/PUT 允许携带载荷，其他方法在发起网络请求前即失败；
// 调用方未指定 content-type 时注入 application/json
func (f *Forwarder) Forward(ctx context.Context, rawText, endpointURL, method, headerSpec string) error {
	extracted, err := Extract(rawText)
	if err != nil {
		return err
	}

	payload, err := ValidatePayload(extracted)
	if err != nil {
		return err
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method != http.MethodPost && method != http.MethodPut {
		return &TransportError{Reason: fmt.Sprintf("method %s cannot carry a control payload", method)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal control payload: %w", err)
	}

	headers := ParseHeaderSpec(headerSpec)
	if !hasContentType(headers) {
		headers["Content-Type"] = "application/json"
	}

	resp, err := f.httpClient.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Execute(method, endpointURL)
	if err != nil {
		return &TransportError{Reason: fmt.Sprintf("control endpoint request failed: %v", err)}
	}

	if !resp.IsSuccess() {
		return &TransportError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	f.logger.Info("Forwarded control payload",
		zap.String("url", endpointURL),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode()),
		zap.Int("item_count", len(payload)),
	)

	return nil
}

func hasContentType(headers map[string]string) bool {
	for name := range headers {
		if strings.EqualFold(name, "Content-Type") {
			return true
		}
	}
	return false
}
