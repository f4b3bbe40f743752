package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/transport"
)

// collections maps each journaled object kind to its REST collection.
var collections = map[model.ObjectKind]string{
	model.ObjectWorkOrder:                     "work-orders",
	model.ObjectMovement:                      "movements",
	model.ObjectLineItem:                      "line-items",
	model.ObjectKindFor(model.KindMaterial):   "materials",
	model.ObjectKindFor(model.KindPackage):    "packages",
	model.ObjectKindFor(model.KindPoint):      "points",
	model.ObjectKindFor(model.KindThirdParty): "third-parties",
	model.ObjectKindFor(model.KindTreatment):  "treatments",
	model.ObjectKindFor(model.KindVehicle):    "vehicles",
}

// CollectionPath returns the collection path for kind, e.g. "/work-orders".
func CollectionPath(kind model.ObjectKind) (string, error) {
	c, ok := collections[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownObjectKind, kind)
	}
	return "/" + c, nil
}

// dispatch sends rec: Create posts to the collection, Update puts to the
// item. remoteID, when known, addresses the item instead of the local id.
func (e *Engine) dispatch(ctx context.Context, rec model.RequestRecord, remoteID string) (*transport.Response, error) {
	path, err := CollectionPath(rec.ObjectKind)
	if err != nil {
		return nil, err
	}

	switch rec.Operation {
	case model.OpCreate:
		return e.transport.Post(ctx, path, rec.Payload)
	case model.OpUpdate:
		id := remoteID
		if id == "" {
			id = rec.PayloadID()
		}
		if id == "" {
			return nil, fmt.Errorf("update %s: payload has no id", rec.ObjectKind)
		}
		return e.transport.Put(ctx, path+"/"+url.PathEscape(id), rec.Payload)
	default:
		return nil, fmt.Errorf("unsupported operation %q", rec.Operation)
	}
}
