package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// FromProto converts a protobuf message into a Value tree. Field names are
// preserved verbatim (proto field names, not JSON names); bytes fields are
// rendered through EncodeBytes; unset fields are omitted like in proto JSON.
func FromProto(m proto.Message) Value {
	if m == nil {
		return Null()
	}
	return fromMessage(m.ProtoReflect())
}

func fromMessage(m protoreflect.Message) Value {
	fields := make(map[string]Value)
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		fields[string(fd.Name())] = fromField(fd, v)
		return true
	})
	return Map(fields)
}

func fromField(fd protoreflect.FieldDescriptor, v protoreflect.Value) Value {
	switch {
	case fd.IsMap():
		entries := make(map[string]Value)
		v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			entries[k.String()] = fromSingular(fd.MapValue(), mv)
			return true
		})
		return Map(entries)
	case fd.IsList():
		l := v.List()
		elems := make([]Value, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			elems = append(elems, fromSingular(fd, l.Get(i)))
		}
		return List(elems)
	default:
		return fromSingular(fd, v)
	}
}

func fromSingular(fd protoreflect.FieldDescriptor, v protoreflect.Value) Value {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return Bool(v.Bool())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return Int(v.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return Int(int64(v.Uint()))
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return Float(v.Float())
	case protoreflect.StringKind:
		return String(v.String())
	case protoreflect.BytesKind:
		return String(EncodeBytes(v.Bytes()))
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return String(string(ev.Name()))
		}
		return Int(int64(v.Enum()))
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return fromMessage(v.Message())
	}
	return Null()
}
