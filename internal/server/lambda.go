package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"linerelay/internal/line"
)

// HandleAPIGateway adapts an API Gateway proxy event to Invoke. It is the
// handler passed to lambda.Start. Rejections are answered in the response;
// dispatch failures are returned as the handler error.
func (s *Server) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, Response{Status: "error", Error: "invalid base64 body"}), nil
		}
		body = decoded
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		return jsonResponse(http.StatusRequestEntityTooLarge, Response{Status: "error", Error: "body too large"}), nil
	}

	status, resp, err := s.Invoke(ctx, body, header(req.Headers, line.SignatureHeader))
	if err != nil {
		// Lambda reports the invocation as failed; API Gateway answers 5xx.
		return events.APIGatewayProxyResponse{}, err
	}
	return jsonResponse(status, resp), nil
}

// header looks name up case-insensitively; API Gateway does not normalize.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, resp Response) events.APIGatewayProxyResponse {
	data, _ := json.Marshal(resp)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}
