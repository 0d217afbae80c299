package shiprocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// ShipmentItem is one line on a forward or return shipment.
type ShipmentItem struct {
	Name         string `json:"name"`
	SKU          string `json:"sku"`
	Units        int    `json:"units"`
	SellingPrice int64  `json:"selling_price"`
}

// ShipmentRequest describes a forward shipment for one order.
type ShipmentRequest struct {
	OrderNo       string
	OrderDate     time.Time
	PaymentMethod string // "COD" or "Prepaid"
	CustomerName  string
	Phone         string
	Email         string
	AddressLine1  string
	AddressLine2  string
	City          string
	State         string
	Pincode       string
	Country       string
	SubtotalPaise int64
	Items         []ShipmentItem
}

// ShipmentResult identifies the created provider-side shipment.
type ShipmentResult struct {
	OrderID    string `json:"order_id"`
	ShipmentID string `json:"shipment_id"`
	Status     string `json:"status"`
}

// AWBResult carries the assigned airway bill.
type AWBResult struct {
	AWB         string
	CourierName string
}

// TrackingActivity is one scan from the provider's tracking feed.
type TrackingActivity struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Activity string `json:"activity"`
	Location string `json:"location"`
}

// TrackingResult summarizes the provider's current view of a shipment.
type TrackingResult struct {
	CurrentStatus string
	Activities    []TrackingActivity
}

// CreateShipment registers a forward shipment for the order.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	items := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, map[string]any{
			"name":          item.Name,
			"sku":           item.SKU,
			"units":         item.Units,
			"selling_price": paiseToRupees(item.SellingPrice),
			"discount":      0,
			"tax":           0,
		})
	}

	payload := map[string]any{
		"order_id":              req.OrderNo,
		"order_date":            req.OrderDate.Format("2006-01-02"),
		"pickup_location":       c.pickupName,
		"channel_id":            c.channelID,
		"billing_customer_name": req.CustomerName,
		"billing_last_name":     "",
		"billing_address":       req.AddressLine1,
		"billing_address_2":     req.AddressLine2,
		"billing_city":          req.City,
		"billing_pincode":       req.Pincode,
		"billing_state":         req.State,
		"billing_country":       req.Country,
		"billing_email":         req.Email,
		"billing_phone":         req.Phone,
		"shipping_is_billing":   true,
		"order_items":           items,
		"payment_method":        req.PaymentMethod,
		"sub_total":             paiseToRupees(req.SubtotalPaise),
	}

	var result struct {
		OrderID    json.Number `json:"order_id"`
		ShipmentID json.Number `json:"shipment_id"`
		Status     string      `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders/create/adhoc", payload, &result); err != nil {
		return nil, err
	}
	return &ShipmentResult{
		OrderID:    result.OrderID.String(),
		ShipmentID: result.ShipmentID.String(),
		Status:     result.Status,
	}, nil
}

// AssignAWB requests an airway bill for the shipment.
func (c *Client) AssignAWB(ctx context.Context, shipmentID string) (*AWBResult, error) {
	payload := map[string]any{"shipment_id": shipmentID}

	var result struct {
		Response struct {
			Data struct {
				AWBCode     string `json:"awb_code"`
				CourierName string `json:"courier_name"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/courier/assign/awb", payload, &result); err != nil {
		return nil, err
	}
	return &AWBResult{
		AWB:         result.Response.Data.AWBCode,
		CourierName: result.Response.Data.CourierName,
	}, nil
}

// SchedulePickup books a courier pickup for the shipment.
func (c *Client) SchedulePickup(ctx context.Context, shipmentID string) (string, error) {
	payload := map[string]any{"shipment_id": []string{shipmentID}}

	var result struct {
		PickupScheduledDate string `json:"pickup_scheduled_date"`
	}
	if err := c.do(ctx, http.MethodPost, "/courier/generate/pickup", payload, &result); err != nil {
		return "", err
	}
	return result.PickupScheduledDate, nil
}

// TrackShipment polls the provider's tracking feed for the shipment.
func (c *Client) TrackShipment(ctx context.Context, shipmentID string) (*TrackingResult, error) {
	var result struct {
		TrackingData struct {
			ShipmentTrack []struct {
				CurrentStatus string `json:"current_status"`
			} `json:"shipment_track"`
			ShipmentTrackActivities []TrackingActivity `json:"shipment_track_activities"`
		} `json:"tracking_data"`
	}
	path := "/courier/track/shipment/" + url.PathEscape(shipmentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}

	out := &TrackingResult{Activities: result.TrackingData.ShipmentTrackActivities}
	if len(result.TrackingData.ShipmentTrack) > 0 {
		out.CurrentStatus = result.TrackingData.ShipmentTrack[0].CurrentStatus
	}
	return out, nil
}

// CancelShipment cancels the provider-side shipments for the given AWBs.
func (c *Client) CancelShipment(ctx context.Context, awbs []string) error {
	payload := map[string]any{"awbs": awbs}
	return c.do(ctx, http.MethodPost, "/orders/cancel/shipment/awbs", payload, nil)
}

// ReturnShipmentRequest describes a reverse pickup for a return request.
type ReturnShipmentRequest struct {
	ReturnNo     string
	OrderDate    time.Time
	CustomerName string
	Phone        string
	Email        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	Country      string
	RefundPaise  int64
	Items        []ShipmentItem
}

// CreateReturn registers a reverse shipment picking the items up from the customer.
func (c *Client) CreateReturn(ctx context.Context, req ReturnShipmentRequest) (*ShipmentResult, error) {
	items := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, map[string]any{
			"name":          item.Name,
			"sku":           item.SKU,
			"units":         item.Units,
			"selling_price": paiseToRupees(item.SellingPrice),
			"discount":      0,
			"tax":           0,
		})
	}

	payload := map[string]any{
		"order_id":             req.ReturnNo,
		"order_date":           req.OrderDate.Format("2006-01-02"),
		"channel_id":           c.channelID,
		"pickup_customer_name": req.CustomerName,
		"pickup_last_name":     "",
		"pickup_address":       req.AddressLine1,
		"pickup_address_2":     req.AddressLine2,
		"pickup_city":          req.City,
		"pickup_state":         req.State,
		"pickup_country":       req.Country,
		"pickup_pincode":       req.Pincode,
		"pickup_email":         req.Email,
		"pickup_phone":         req.Phone,
		"order_items":          items,
		"payment_method":       "Prepaid",
		"sub_total":            paiseToRupees(req.RefundPaise),
	}

	var result struct {
		OrderID    json.Number `json:"order_id"`
		ShipmentID json.Number `json:"shipment_id"`
		Status     string      `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders/create/return", payload, &result); err != nil {
		return nil, err
	}
	return &ShipmentResult{
		OrderID:    result.OrderID.String(),
		ShipmentID: result.ShipmentID.String(),
		Status:     result.Status,
	}, nil
}

func paiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}
