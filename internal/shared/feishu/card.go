package feishu

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// 消息卡片服务 — 发送飞书交互式消息卡片
// 作为PTW站内通知的尽力而为旁路：发送失败只记日志，绝不影响许可单状态
// =============================================================================

// SendUserCard 向个人发送消息卡片
// userID: 用户ID（open_id）
// card: 交互式卡片内容
func (c *FeishuClient) SendUserCard(ctx context.Context, userID string, card InteractiveCard) error {
	return c.sendCard(ctx, "open_id", userID, card)
}

// sendCard 发送消息卡片的内部实现
func (c *FeishuClient) sendCard(ctx context.Context, idType, id string, card InteractiveCard) error {
	// 将卡片序列化为JSON字符串
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}

	// 构造请求体
	reqBody := map[string]interface{}{
		"receive_id_type": idType,
		"receive_id":      id,
		"msg_type":        "interactive",
		"content":         string(cardBytes),
	}

	path := fmt.Sprintf("/open-apis/im/v1/messages?receive_id_type=%s", idType)

	var resp SendMessageResponse
	if err := c.doRequest(ctx, "POST", path, reqBody, &resp); err != nil {
		return fmt.Errorf("发送消息卡片失败: %w", err)
	}

	return nil
}

// =============================================================================
// 预设卡片模板 — PTW业务通知卡片
// =============================================================================

// NewApprovalRequestCard 创建许可审批请求通知卡片
// serial: 许可单编号
// title: 作业名称
// message: 请求说明（含申请人与角色）
func NewApprovalRequestCard(serial, title, message string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "🦺 新作业许可审批请求"},
			Template: "orange",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**许可单号**\n%s", serial)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**作业名称**\n%s", title)}},
				},
			},
			{
				Tag:  "div",
				Text: &CardText{Tag: "lark_md", Content: message},
			},
			{Tag: "hr"},
			{
				Tag: "note",
				Elements: []CardElement{
					{Tag: "plain_text", Content: "请登录 PTW 系统处理此审批请求"},
				},
			},
		},
	}
}

// NewApprovalResultCard 创建审批结果通知卡片
// serial: 许可单编号
// result: 审批结果（通过/驳回）
// comment: 审批意见或驳回原因
func NewApprovalResultCard(serial, result, comment string) InteractiveCard {
	// 根据结果选择颜色模板
	template := "green"
	emoji := "✅"
	if result != "通过" {
		template = "red"
		emoji = "❌"
	}

	elements := []CardElement{
		{
			Tag: "div",
			Fields: []CardField{
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**许可单号**\n%s", serial)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批结果**\n%s %s", emoji, result)}},
			},
		},
	}

	if comment != "" {
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{
				Tag:  "div",
				Text: &CardText{Tag: "lark_md", Content: fmt.Sprintf("**审批意见**\n%s", comment)},
			},
		)
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "📋 作业许可审批结果"},
			Template: template,
		},
		Elements: elements,
	}
}

// NewReminderCard 创建时间提醒通知卡片
// serial: 许可单编号
// title: 作业名称
// message: 提醒内容（开工/到期）
func NewReminderCard(serial, title, message string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "⏰ 作业许可时间提醒"},
			Template: "blue",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**许可单号**\n%s", serial)}},
					{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**作业名称**\n%s", title)}},
				},
			},
			{
				Tag:  "div",
				Text: &CardText{Tag: "lark_md", Content: message},
			},
		},
	}
}
