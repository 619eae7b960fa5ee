package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/piwi3910/CrateFit/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// flexibleID accepts a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("id must be a string or a number")
	}
	*f = flexibleID(n.String())
	return nil
}

type dimensionsRequest struct {
	Width  *float64 `json:"width" validate:"required,gt=0,lte=100000"`
	Height *float64 `json:"height" validate:"required,gt=0,lte=100000"`
	Depth  *float64 `json:"depth" validate:"required,gt=0,lte=100000"`
}

type itemRequest struct {
	ID         *flexibleID        `json:"id"`
	Name       string             `json:"name"`
	Quantity   int                `json:"quantity" validate:"gte=0,lte=10000"`
	Dimensions *dimensionsRequest `json:"dimensions" validate:"required"`
}

type configRequest struct {
	PopulationSize int    `json:"population_size" validate:"omitempty,gte=2,lte=1000"`
	Generations    int    `json:"generations" validate:"omitempty,gte=1,lte=10000"`
	Algorithm      string `json:"algorithm" validate:"omitempty,oneof=genetic greedy"`
	Seed           int64  `json:"seed"`
}

type optimizeRequest struct {
	Container       *dimensionsRequest `json:"container" validate:"required_without=ContainerPreset"`
	ContainerPreset string             `json:"container_preset"`
	Items           []itemRequest      `json:"items" validate:"required,min=1,dive"`
	Config          *configRequest     `json:"config"`
}

// validationMessage turns the first validation failure into the message
// returned to the client.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	fe := verrs[0]

	// Namespace is "optimizeRequest.<json path>".
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}

	switch {
	case path == "container" || path == "items":
		if path == "items" && fe.Tag() == "min" {
			return "No items provided or invalid items format"
		}
		return "Missing container or items data"
	case strings.HasPrefix(path, "container."):
		if fe.Tag() == "required" {
			return "Container dimensions not specified"
		}
		return fmt.Sprintf("Container %s must be positive and at most %d", fe.Field(), model.MaxDimension)
	case strings.HasPrefix(path, "items["):
		switch {
		case strings.HasSuffix(path, ".dimensions"):
			return "Item missing dimensions"
		case strings.Contains(path, ".dimensions."):
			if fe.Tag() == "required" {
				return "Item dimensions incomplete"
			}
			return fmt.Sprintf("Item %s must be positive and at most %d", fe.Field(), model.MaxDimension)
		case strings.HasSuffix(path, ".quantity"):
			return "Item quantity must be between 0 and 10000"
		}
	case strings.HasPrefix(path, "config."):
		return fmt.Sprintf("Invalid config value for %s (%s %s)", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("Invalid value for %s", path)
}

// containerDimensions floors the requested size to whole cells.
func (d *dimensionsRequest) containerDimensions() (model.Dimensions, error) {
	size := model.Dimensions{
		Width:  int(math.Floor(*d.Width)),
		Height: int(math.Floor(*d.Height)),
		Depth:  int(math.Floor(*d.Depth)),
	}
	if size.Width < 1 || size.Height < 1 || size.Depth < 1 {
		return model.Dimensions{}, errors.New("container dimensions must be at least 1")
	}
	if err := size.ValidateGrid(); err != nil {
		return model.Dimensions{}, err
	}
	return size, nil
}

// itemDimensions rounds the requested size up so the item never shrinks.
func (d *dimensionsRequest) itemDimensions() model.Dimensions {
	return model.Dimensions{
		Width:  int(math.Ceil(*d.Width)),
		Height: int(math.Ceil(*d.Height)),
		Depth:  int(math.Ceil(*d.Depth)),
	}
}

// itemSpecs converts request items; an item without id takes its index.
func (r *optimizeRequest) itemSpecs() []model.ItemSpec {
	specs := make([]model.ItemSpec, len(r.Items))
	for i, it := range r.Items {
		id := strconv.Itoa(i)
		if it.ID != nil && *it.ID != "" {
			id = string(*it.ID)
		}
		specs[i] = model.ItemSpec{
			ID:       id,
			Name:     it.Name,
			Size:     it.Dimensions.itemDimensions(),
			Quantity: it.Quantity,
		}
	}
	return specs
}

// settings applies the request's config over the server defaults.
func (r *optimizeRequest) settings(defaults model.PackSettings) model.PackSettings {
	s := defaults
	if r.Config == nil {
		return s
	}
	if r.Config.PopulationSize > 0 {
		s.PopulationSize = r.Config.PopulationSize
	}
	if r.Config.Generations > 0 {
		s.Generations = r.Config.Generations
	}
	if r.Config.Algorithm != "" {
		s.Algorithm = model.Algorithm(r.Config.Algorithm)
	}
	if r.Config.Seed != 0 {
		s.Seed = r.Config.Seed
	}
	return s
}
