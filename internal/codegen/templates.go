package codegen

import "text/template"

var rigidBodyTemplate = template.Must(template.New("rigid_body").Parse(`
scene = bpy.context.scene
if scene.rigidbody_world is None:
    bpy.ops.rigidbody.world_add()
scene.rigidbody_world.enabled = True
scene.gravity = (0.0, 0.0, {{.Gravity}})
scene.rigidbody_world.substeps_per_frame = {{.Substeps}}
scene.rigidbody_world.solver_iterations = {{.Iterations}}
scene.rigidbody_world.point_cache.frame_start = 1
scene.rigidbody_world.point_cache.frame_end = {{.Frames}}

def add_primitive(shape, location, scale):
    if shape == 'sphere':
        bpy.ops.mesh.primitive_uv_sphere_add(radius=0.5 * scale, location=location)
    elif shape == 'cylinder':
        bpy.ops.mesh.primitive_cylinder_add(radius=0.5 * scale, depth=scale, location=location)
    elif shape == 'cone':
        bpy.ops.mesh.primitive_cone_add(radius1=0.5 * scale, depth=scale, location=location)
    elif shape == 'plane':
        bpy.ops.mesh.primitive_plane_add(size=10.0 * scale, location=location)
    else:
        bpy.ops.mesh.primitive_cube_add(size=scale, location=location)
    return bpy.context.object

def add_rigid_body(obj, static, density, scale, friction, restitution, lin_damp, ang_damp, shape):
    bpy.context.view_layer.objects.active = obj
    bpy.ops.rigidbody.object_add()
    body = obj.rigid_body
    body.type = 'PASSIVE' if static else 'ACTIVE'
    body.collision_shape = shape
    body.friction = friction
    body.restitution = restitution
    if not static:
        body.mass = max(0.1, density * scale ** 3 * 0.001)
        body.linear_damping = lin_damp
        body.angular_damping = ang_damp
{{range $idx, $e := .Entities}}
for i in range({{$e.Count}}):
    col = i % 5
    row = (i // 5) % 5
    layer = i // 25
    {{- if $e.Static}}
    location = (0.0, 0.0, 0.0)
    {{- else}}
    location = (col * {{$e.Scale}} * 1.5 - 3.0, row * {{$e.Scale}} * 1.5 - 3.0, 2.0 + layer * {{$e.Scale}} * 1.5 + {{$idx}} * 0.25)
    {{- end}}
    obj = add_primitive('{{$e.Shape}}', location, {{$e.Scale}})
    obj.name = '{{$e.Name}}_%03d' % i
    add_rigid_body(obj, {{if $e.Static}}True{{else}}False{{end}}, {{$e.Density}}, {{$e.Scale}}, {{$e.Friction}}, {{$e.Restitution}}, {{$e.LinearDamping}}, {{$e.AngularDamping}}, '{{$e.CollisionShape}}')
{{end}}
def bake_rigid_bodies():
    bpy.ops.ptcache.bake_all(bake=True)

bake_rigid_bodies()
`))

var smokeTemplate = template.Must(template.New("smoke").Parse(`
scene = bpy.context.scene
scene.gravity = (0.0, 0.0, {{.Gravity}})

bpy.ops.mesh.primitive_cube_add(size=12.0, location=(0.0, 0.0, 6.0))
domain = bpy.context.object
domain.name = 'smoke_domain'
mod = domain.modifiers.new(name='Fluid', type='FLUID')
mod.fluid_type = 'DOMAIN'
settings = mod.domain_settings
settings.domain_type = 'GAS'
settings.resolution_max = {{.ResolutionMax}}
settings.cache_frame_start = 1
settings.cache_frame_end = {{.Frames}}
settings.use_adaptive_domain = True
{{range $idx, $e := .Entities}}{{if not $e.Static}}
for i in range({{$e.Count}}):
    bpy.ops.mesh.primitive_uv_sphere_add(radius=0.4 * {{$e.Scale}}, location=(i * 1.2 - {{$e.Count}} * 0.6, {{$idx}} * 1.5, 0.8))
    emitter = bpy.context.object
    emitter.name = '{{$e.Name}}_emitter_%03d' % i
    emod = emitter.modifiers.new(name='Fluid', type='FLUID')
    emod.fluid_type = 'FLOW'
    emod.flow_settings.flow_type = 'BOTH' if '{{$e.Name}}'.find('fire') >= 0 else 'SMOKE'
    emod.flow_settings.flow_behavior = 'INFLOW'
{{end}}{{end}}
def bake_fluid(domain_obj):
    bpy.context.view_layer.objects.active = domain_obj
    bpy.ops.fluid.bake_all()

bake_fluid(domain)
`))

var liquidTemplate = template.Must(template.New("liquid").Parse(`
scene = bpy.context.scene
scene.gravity = (0.0, 0.0, {{.Gravity}})

bpy.ops.mesh.primitive_cube_add(size=10.0, location=(0.0, 0.0, 5.0))
domain = bpy.context.object
domain.name = 'liquid_domain'
mod = domain.modifiers.new(name='Fluid', type='FLUID')
mod.fluid_type = 'DOMAIN'
settings = mod.domain_settings
settings.domain_type = 'LIQUID'
settings.resolution_max = {{.ResolutionMax}}
settings.cache_frame_start = 1
settings.cache_frame_end = {{.Frames}}
settings.use_mesh = True
{{range $idx, $e := .Entities}}
{{- if $e.Static}}
bpy.ops.mesh.primitive_cube_add(size=4.0 * {{$e.Scale}}, location=(0.0, {{$idx}} * 2.0, 1.0))
obstacle = bpy.context.object
obstacle.name = '{{$e.Name}}_obstacle'
omod = obstacle.modifiers.new(name='Fluid', type='FLUID')
omod.fluid_type = 'EFFECTOR'
omod.effector_settings.effector_type = 'COLLISION'
{{- else}}
for i in range({{$e.Count}}):
    bpy.ops.mesh.primitive_uv_sphere_add(radius=0.5 * {{$e.Scale}}, location=(i * 1.4 - {{$e.Count}} * 0.7, {{$idx}} * 1.5, 7.5))
    inflow = bpy.context.object
    inflow.name = '{{$e.Name}}_inflow_%03d' % i
    imod = inflow.modifiers.new(name='Fluid', type='FLUID')
    imod.fluid_type = 'FLOW'
    imod.flow_settings.flow_type = 'LIQUID'
    imod.flow_settings.flow_behavior = 'INFLOW'
{{- end}}
{{end}}
def bake_fluid(domain_obj):
    bpy.context.view_layer.objects.active = domain_obj
    bpy.ops.fluid.bake_all()

bake_fluid(domain)
`))

var clothTemplate = template.Must(template.New("cloth").Parse(`
scene = bpy.context.scene
scene.gravity = (0.0, 0.0, {{.Gravity}})
{{range $idx, $e := .Entities}}
{{- if $e.Static}}
bpy.ops.mesh.primitive_uv_sphere_add(radius=1.2 * {{$e.Scale}}, location=(0.0, {{$idx}} * 2.0, 2.0))
collider = bpy.context.object
collider.name = '{{$e.Name}}_collider'
collider.modifiers.new(name='Collision', type='COLLISION')
{{- else}}
for i in range({{$e.Count}}):
    bpy.ops.mesh.primitive_plane_add(size=4.0 * {{$e.Scale}}, location=(i * 4.5 - {{$e.Count}} * 2.25, {{$idx}} * 2.0, 4.0))
    cloth_obj = bpy.context.object
    cloth_obj.name = '{{$e.Name}}_%03d' % i
    bpy.ops.object.mode_set(mode='EDIT')
    bpy.ops.mesh.subdivide(number_cuts=20)
    bpy.ops.object.mode_set(mode='OBJECT')
    cmod = cloth_obj.modifiers.new(name='Cloth', type='CLOTH')
    cmod.settings.quality = {{$.QualitySteps}}
    cmod.settings.mass = max(0.1, {{$e.Density}} * 0.001)
    cmod.point_cache.frame_start = 1
    cmod.point_cache.frame_end = {{$.Frames}}
{{- end}}
{{end}}
def bake_cloth():
    bpy.ops.ptcache.bake_all(bake=True)

bake_cloth()
`))
